package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/emdr/protokoll/internal/domain/protocol"
)

const protocolBody = `{
	"chiffre": "AB-12", "datum": "2024-03-15", "protokollnummer": "P-1",
	"protocolType": "cipos",
	"cipos": {
		"belastungssituation": "Pruefungsangst",
		"sudVorher": 7,
		"durchgaenge": [{"nummer": 1, "anzahlBewegungen": 12, "sud": 5}],
		"sudNachher": 3
	}
}`

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)

	token := registerTherapist(t, srv, "weber@praxis.de")

	// The session works.
	var me struct {
		Email string `json:"email"`
	}
	resp, raw := call(t, srv, http.MethodGet, "/api/v1/auth/me", token, "", &me)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", resp.StatusCode, raw)
	}
	if me.Email != "weber@praxis.de" {
		t.Errorf("wrong account: %+v", me)
	}

	// Duplicate registration is a conflict.
	resp, _ = call(t, srv, http.MethodPost, "/api/v1/auth/register", "",
		`{"email": "weber@praxis.de", "password": "x"}`, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: %d", resp.StatusCode)
	}

	// Login with wrong password fails, with the right one succeeds.
	resp, _ = call(t, srv, http.MethodPost, "/api/v1/auth/login", "",
		`{"email": "weber@praxis.de", "password": "falsch"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login: %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	resp, raw = call(t, srv, http.MethodPost, "/api/v1/auth/login", "",
		`{"email": "weber@praxis.de", "password": "geheim"}`, &login)
	if resp.StatusCode != http.StatusOK || login.Token == "" {
		t.Fatalf("login: %d %s", resp.StatusCode, raw)
	}

	// Logout kills the session.
	resp, _ = call(t, srv, http.MethodPost, "/api/v1/auth/logout", login.Token, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
	resp, _ = call(t, srv, http.MethodGet, "/api/v1/auth/me", login.Token, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("session survived logout: %d", resp.StatusCode)
	}

	// Unauthenticated access to protected endpoints is rejected.
	resp, _ = call(t, srv, http.MethodGet, "/api/v1/protocols", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous list: %d", resp.StatusCode)
	}
}

func TestProtocolCRUDRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	token := registerTherapist(t, srv, "weber@praxis.de")

	var created protocol.Protocol
	resp, raw := call(t, srv, http.MethodPost, "/api/v1/protocols", token, protocolBody, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, raw)
	}
	if created.ID == "" || created.CIPOS == nil {
		t.Fatalf("create response incomplete: %s", raw)
	}

	var got protocol.Protocol
	resp, raw = call(t, srv, http.MethodGet, "/api/v1/protocols/"+created.ID, token, "", &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, raw)
	}
	if got.CIPOS.Belastungssituation != "Pruefungsangst" || len(got.CIPOS.Durchgaenge) != 1 {
		t.Errorf("round trip lost data: %+v", got.CIPOS)
	}

	// Update keeps identity, changes content.
	updated := strings.Replace(protocolBody, `"sudNachher": 3`, `"sudNachher": 1`, 1)
	resp, raw = call(t, srv, http.MethodPut, "/api/v1/protocols/"+created.ID, token, updated, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", resp.StatusCode, raw)
	}
	if got.ID != created.ID {
		t.Errorf("update changed the id: %s -> %s", created.ID, got.ID)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("update changed createdAt: %v -> %v", created.CreatedAt, got.CreatedAt)
	}
	if !got.LastModified.After(created.LastModified) {
		t.Errorf("lastModified did not advance: %v vs %v", got.LastModified, created.LastModified)
	}
	if got.CIPOS.SUDNachher != 1 {
		t.Errorf("update not applied: %+v", got.CIPOS)
	}

	// Invalid update is rejected with field details and leaves the record
	// untouched.
	invalid := strings.Replace(protocolBody, `"chiffre": "AB-12"`, `"chiffre": ""`, 1)
	resp, raw = call(t, srv, http.MethodPut, "/api/v1/protocols/"+created.ID, token, invalid, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid update: %d %s", resp.StatusCode, raw)
	}
	call(t, srv, http.MethodGet, "/api/v1/protocols/"+created.ID, token, "", &got)
	if got.Chiffre != "AB-12" {
		t.Errorf("rejected update still changed the record: %+v", got.Metadata)
	}

	// Delete, then the record and its list entry are gone; repeating is fine.
	resp, _ = call(t, srv, http.MethodDelete, "/api/v1/protocols/"+created.ID, token, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = call(t, srv, http.MethodGet, "/api/v1/protocols/"+created.ID, token, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted record still served: %d", resp.StatusCode)
	}
	resp, _ = call(t, srv, http.MethodDelete, "/api/v1/protocols/"+created.ID, token, "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("repeat delete: %d", resp.StatusCode)
	}
	var page struct {
		Total int `json:"total"`
	}
	call(t, srv, http.MethodGet, "/api/v1/protocols", token, "", &page)
	if page.Total != 0 {
		t.Errorf("summary survived the delete: %+v", page)
	}
}

func TestListSearchAndGrouping(t *testing.T) {
	srv := newTestServer(t)
	token := registerTherapist(t, srv, "weber@praxis.de")

	seed := []string{
		`{"chiffre": "P-001", "datum": "2024-01-02", "protokollnummer": "P-10", "protocolType": "sicherer-ort", "sichererOrt": {"ortBeschreibung": "Strand"}}`,
		`{"chiffre": "P-001", "datum": "2024-01-03", "protokollnummer": "P-2", "protocolType": "iri", "iri": {"indikation": "Stabilisierung"}}`,
		`{"chiffre": "P-002", "datum": "2024-01-04", "protokollnummer": "1", "protocolType": "iri", "iri": {}}`,
	}
	for _, b := range seed {
		resp, raw := call(t, srv, http.MethodPost, "/api/v1/protocols", token, b, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed: %d %s", resp.StatusCode, raw)
		}
	}

	var page struct {
		Data  []protocol.ListItem `json:"data"`
		Total int                 `json:"total"`
	}
	call(t, srv, http.MethodGet, "/api/v1/protocols", token, "", &page)
	if page.Total != 3 {
		t.Fatalf("expected 3 summaries, got %+v", page)
	}

	// Type filter.
	call(t, srv, http.MethodGet, "/api/v1/protocols?type=iri", token, "", &page)
	if page.Total != 2 {
		t.Errorf("type filter: %+v", page)
	}

	// Search matches chiffre or protokollnummer.
	call(t, srv, http.MethodGet, "/api/v1/protocols?q=p-2", token, "", &page)
	if page.Total != 1 || page.Data[0].Protokollnummer != "P-2" {
		t.Errorf("search: %+v", page)
	}

	// Grouping partitions by chiffre and orders within by embedded number.
	var grouped struct {
		Groups []protocol.Group `json:"groups"`
	}
	call(t, srv, http.MethodGet, "/api/v1/protocols?group=chiffre", token, "", &grouped)
	if len(grouped.Groups) != 2 || grouped.Groups[0].Chiffre != "P-001" {
		t.Fatalf("grouping: %+v", grouped.Groups)
	}
	nums := grouped.Groups[0].Items
	if len(nums) != 2 || nums[0].Protokollnummer != "P-2" || nums[1].Protokollnummer != "P-10" {
		t.Errorf("within-group ordering: %+v", nums)
	}
}

func TestImportAndExport(t *testing.T) {
	srv := newTestServer(t)
	token := registerTherapist(t, srv, "weber@praxis.de")

	importBody := `[
		{"id": "imp-1", "chiffre": "X-1", "datum": "2024-01-01", "protokollnummer": "1", "protocolType": "sicherer-ort", "sichererOrt": {}},
		{"id": "", "chiffre": "X-1", "datum": "2024-01-01"},
		{"id": "imp-2", "chiffre": "X-1", "datum": "2024-01-02", "protokollnummer": "2", "protocolType": "cipos", "cipos": {}}
	]`
	var imported struct {
		Imported int `json:"imported"`
	}
	resp, raw := call(t, srv, http.MethodPost, "/api/v1/protocols/import", token, importBody, &imported)
	if resp.StatusCode != http.StatusOK || imported.Imported != 2 {
		t.Fatalf("import: %d %s", resp.StatusCode, raw)
	}

	// PDF is the default export format.
	resp, raw = call(t, srv, http.MethodGet, "/api/v1/protocols/imp-1/export", token, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pdf export: %d %s", resp.StatusCode, raw)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type %q", ct)
	}
	if !strings.HasPrefix(raw, "%PDF") {
		t.Errorf("body is not a PDF: %q", raw[:min(8, len(raw))])
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "protokoll-imp-1.pdf") {
		t.Errorf("content disposition %q", cd)
	}

	var exported protocol.Protocol
	resp, _ = call(t, srv, http.MethodGet, "/api/v1/protocols/imp-1/export?format=json", token, "", &exported)
	if resp.StatusCode != http.StatusOK || exported.ID != "imp-1" {
		t.Errorf("json export: %d %+v", resp.StatusCode, exported.Metadata)
	}
}

func TestOwnerScoping(t *testing.T) {
	srv := newTestServer(t)
	alice := registerTherapist(t, srv, "alice@praxis.de")
	bob := registerTherapist(t, srv, "bob@praxis.de")

	var created protocol.Protocol
	resp, raw := call(t, srv, http.MethodPost, "/api/v1/protocols", alice, protocolBody, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, raw)
	}

	resp, _ = call(t, srv, http.MethodGet, "/api/v1/protocols/"+created.ID, bob, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("bob can read alice's record: %d", resp.StatusCode)
	}

	var page struct {
		Total int `json:"total"`
	}
	call(t, srv, http.MethodGet, "/api/v1/protocols", bob, "", &page)
	if page.Total != 0 {
		t.Errorf("bob sees alice's summaries: %+v", page)
	}

	// Bob deleting alice's record is a no-op for alice.
	call(t, srv, http.MethodDelete, "/api/v1/protocols/"+created.ID, bob, "", nil)
	resp, _ = call(t, srv, http.MethodGet, "/api/v1/protocols/"+created.ID, alice, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("alice's record gone after bob's delete: %d", resp.StatusCode)
	}
}

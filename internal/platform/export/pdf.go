package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/emdr/protokoll/internal/domain/protocol"
)

// PDFOptions carries the static header values of the printable layout.
type PDFOptions struct {
	// Praxis is the practice name printed in the document header; empty
	// leaves the line out.
	Praxis string
}

// Service implements the protocol domain's DocumentExporter.
type Service struct {
	opts PDFOptions
}

func NewService(opts PDFOptions) *Service {
	return &Service{opts: opts}
}

func (s *Service) PDF(p *protocol.Protocol) ([]byte, error) {
	return PDF(p, s.opts)
}

func (s *Service) JSON(p *protocol.Protocol) ([]byte, error) {
	return JSON(p)
}

// PDF renders the protocol in the fixed printable layout: a header with the
// practice name, a metadata block, and one section per variant field in form
// order.
func PDF(p *protocol.Protocol, opts PDFOptions) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 18, 20)
	doc.AddPage()

	if opts.Praxis != "" {
		doc.SetFont("Helvetica", "", 9)
		doc.CellFormat(0, 5, opts.Praxis, "", 1, "R", false, 0, "")
	}
	doc.SetFont("Helvetica", "B", 14)
	doc.CellFormat(0, 9, p.ProtocolType.Label(), "", 1, "L", false, 0, "")
	doc.Ln(2)

	writeMetadata(doc, p)
	doc.Ln(4)

	switch p.ProtocolType {
	case protocol.TypeStandard:
		writeStandard(doc, p.Standard)
	case protocol.TypeIRI:
		writeIRI(doc, p.IRI)
	case protocol.TypeCIPOS:
		writeCIPOS(doc, p.CIPOS)
	case protocol.TypeSichererOrt:
		writeSichererOrt(doc, p.SichererOrt)
	case protocol.TypeCustom:
		for k, v := range p.Custom {
			writeText(doc, k, fmt.Sprintf("%v", v))
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf for %s: %w", p.ID, err)
	}
	return buf.Bytes(), nil
}

func writeMetadata(doc *fpdf.Fpdf, p *protocol.Protocol) {
	rows := [][2]string{
		{"Chiffre", p.Chiffre},
		{"Datum", p.Datum},
		{"Protokollnummer", p.Protokollnummer},
	}
	doc.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		doc.SetFont("Helvetica", "B", 10)
		doc.CellFormat(45, 6, row[0], "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		doc.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}
}

func writeHeading(doc *fpdf.Fpdf, title string) {
	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
}

func writeText(doc *fpdf.Fpdf, label, value string) {
	if value == "" {
		value = "-"
	}
	doc.SetFont("Helvetica", "B", 10)
	doc.CellFormat(0, 6, label, "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.MultiCell(0, 5, value, "", "L", false)
	doc.Ln(1)
}

func writeStandard(doc *fpdf.Fpdf, d *protocol.StandardData) {
	writeText(doc, "Startknoten", d.StartKnoten)
	writeHeading(doc, "Kanal")
	for i, item := range d.Channel {
		header := fmt.Sprintf("Set %d: %d Bewegungen, %s",
			i+1, item.Stimulation.AnzahlBewegungen, item.Stimulation.Geschwindigkeit)
		doc.SetFont("Helvetica", "I", 9)
		doc.CellFormat(0, 5, header, "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		doc.MultiCell(0, 5, item.Fragment.Text, "", "L", false)
		if item.Fragment.Einwebung != "" {
			writeText(doc, "Einwebung", item.Fragment.Einwebung)
		}
		if item.Fragment.Notizen != "" {
			writeText(doc, "Notizen", item.Fragment.Notizen)
		}
		doc.Ln(1)
	}
}

func writeIRI(doc *fpdf.Fpdf, d *protocol.IRIData) {
	writeText(doc, "Indikation", d.Indikation)
	writeText(doc, "Positiver Moment", d.PositiverMoment)
	writeText(doc, "Koerperwahrnehmung", d.Koerperwahrnehmung)
	writeText(doc, "LOPE vorher", strconv.Itoa(d.LopeVorher))
	writeHeading(doc, "Bilaterale Stimulation ("+d.BilateraleStimulation.Typ+")")
	for i, set := range d.BilateraleStimulation.Sets {
		writeText(doc, fmt.Sprintf("Set %d (LOPE %d)", i+1, set.Lope), set.Notizen)
	}
	writeText(doc, "LOPE nachher", strconv.Itoa(d.LopeNachher))
	writeText(doc, "Ressourcen-Einschaetzung", d.RessourcenEinschaetzung)
	writeText(doc, "Abschluss", d.Abschluss)
	if d.Notizen != "" {
		writeText(doc, "Notizen", d.Notizen)
	}
}

func writeCIPOS(doc *fpdf.Fpdf, d *protocol.CIPOSData) {
	writeText(doc, "Belastungssituation", d.Belastungssituation)
	writeText(doc, "SUD vorher", strconv.Itoa(d.SUDVorher))
	writeText(doc, "Ort der Sicherheit", d.OrtDerSicherheit)
	writeHeading(doc, "Durchgaenge")
	for _, dg := range d.Durchgaenge {
		writeText(doc,
			fmt.Sprintf("Durchgang %d: %d Bewegungen, SUD %d", dg.Nummer, dg.AnzahlBewegungen, dg.SUD),
			dg.Rueckmeldung)
	}
	writeText(doc, "SUD nachher", strconv.Itoa(d.SUDNachher))
	writeText(doc, "Koerperreaktion", d.Koerperreaktion)
	writeText(doc, "Abschluss", d.Abschluss)
	if d.Notizen != "" {
		writeText(doc, "Notizen", d.Notizen)
	}
}

func writeSichererOrt(doc *fpdf.Fpdf, d *protocol.SichererOrtData) {
	writeText(doc, "Ort", d.OrtBeschreibung)
	writeText(doc, "Sinneseindruecke", d.Sinneseindruecke)
	writeText(doc, "Emotionen", d.Emotionen)
	writeText(doc, "Koerperwahrnehmung", d.Koerperwahrnehmung)
	if d.StoerungenVorhanden {
		writeText(doc, "Stoerungen", d.StoerungenBeschreibung)
	}
	writeText(doc, "Bilaterale Stimulation", d.BilateraleStimulation)
	writeText(doc, "Schluesselwort", d.Schluesselwort)
	writeText(doc, "Alltagstransfer", d.Alltagstransfer)
}

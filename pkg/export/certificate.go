package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries everything printed on a clearance certificate.
type CertificateData struct {
	StudentName        string
	RegistrationNumber string
	Program            string
	Faculty            string
	GraduationYear     int
	CompletionDate     time.Time
	Signoffs           []CertificateSignoff
}

// CertificateSignoff is one department line on the certificate.
type CertificateSignoff struct {
	Order          int
	DepartmentName string
	DepartmentCode string
	ApprovedBy     string
	ApprovalDate   time.Time
}

// CertificateRenderer renders completed clearance requests into a PDF certificate.
type CertificateRenderer struct {
	institution string
}

// NewCertificateRenderer constructs a renderer branded with the institution name.
func NewCertificateRenderer(institution string) *CertificateRenderer {
	if institution == "" {
		institution = "Graduation Clearance Office"
	}
	return &CertificateRenderer{institution: institution}
}

// Render produces the certificate PDF bytes.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.StudentName == "" || data.RegistrationNumber == "" {
		return nil, fmt.Errorf("certificate requires student name and registration number")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, r.institution, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 9, "CERTIFICATE OF GRADUATION CLEARANCE", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 7, fmt.Sprintf(
		"This certifies that %s (%s), %s, %s, has been cleared by all required departments and is eligible for graduation in %d.",
		data.StudentName, data.RegistrationNumber, data.Program, data.Faculty, data.GraduationYear,
	), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Clearance completed on %s", data.CompletionDate.Format("2 January 2006")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	widths := []float64{12, 70, 25, 45, 28}
	headers := []string{"#", "Department", "Code", "Cleared By", "Date"}
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, signoff := range data.Signoffs {
		pdf.CellFormat(widths[0], 7, fmt.Sprintf("%d", signoff.Order), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 7, signoff.DepartmentName, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 7, signoff.DepartmentCode, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, signoff.ApprovedBy, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[4], 7, signoff.ApprovalDate.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

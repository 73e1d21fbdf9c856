package document

import (
	"bytes"
	"fmt"
	"time"

	"termin/internal/models"

	"github.com/go-pdf/fpdf"
)

const ContentType = "application/pdf"

// ReceiptRenderer draws the booking confirmation PDF.
type ReceiptRenderer struct {
	appName string
	now     func() time.Time
}

func NewReceiptRenderer(appName string) *ReceiptRenderer {
	return &ReceiptRenderer{appName: appName, now: time.Now}
}

// Filename is the attachment name used for a booking's receipt.
func Filename(bookingID int64) string {
	return fmt.Sprintf("booking_%d.pdf", bookingID)
}

func (r *ReceiptRenderer) Render(booking *models.Booking) ([]byte, error) {
	if booking == nil {
		return nil, fmt.Errorf("render receipt: nil booking")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Booking #%d", booking.ID), true)
	pdf.SetAuthor(r.appName, true)
	pdf.SetCreationDate(r.now())
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr(r.appName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "Booking confirmation", "", 1, "L", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Booking number", fmt.Sprintf("%d", booking.ID)},
		{"Name", booking.Name},
		{"Email", booking.Email},
		{"Phone", booking.Phone},
		{"Date", booking.DateString()},
		{"Time", booking.Time.String()},
		{"Status", booking.Status},
	}

	pdf.SetFillColor(240, 240, 240)
	for i, row := range rows {
		fill := i%2 == 0
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 9, row[0], "1", 0, "L", fill, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 9, tr(row[1]), "1", 1, "L", fill, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 5, "Issued "+r.now().Format(models.DateTimeLayout), "", 1, "L", false, 0, "")
	pdf.MultiCell(0, 5, "Please bring this confirmation to your appointment. "+
		"Contact us if you need to change or cancel your booking.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %d: %w", booking.ID, err)
	}
	return buf.Bytes(), nil
}

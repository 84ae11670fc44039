package service

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"parkwise/internal/entities"
	"parkwise/internal/logger"
	"parkwise/internal/utils"
)

//go:embed templates/booking_email.html
var templateFS embed.FS

var bookingEmailTemplate = template.Must(template.ParseFS(templateFS, "templates/booking_email.html"))

// Addresses on this domain are placeholders the backend derives from phone
// numbers; they cannot receive mail.
const syntheticEmailDomain = "@parkwise.com"

// SenderService sends booking confirmations by email and SMS. Delivery runs
// in the background and failures are only logged.
type SenderService struct {
	mailer Mailer
	texter Texter
	loc    *time.Location
	log    *logger.Logger
	now    func() time.Time
	run    func(func())
}

func NewSenderService(mailer Mailer, texter Texter, loc *time.Location, log *logger.Logger) *SenderService {
	if loc == nil {
		loc = time.UTC
	}
	return &SenderService{
		mailer: mailer,
		texter: texter,
		loc:    loc,
		log:    log,
		now:    time.Now,
		run:    func(fn func()) { go fn() },
	}
}

func (s *SenderService) BookingConfirmed(user entities.User, lang string, lot *entities.Lot, slot entities.Slot, b *entities.Booking, total int64) {
	if b == nil {
		return
	}
	data := s.emailData(user, lang, lot, slot, b, total)

	if s.mailer != nil && user.Email != "" && !strings.HasSuffix(strings.ToLower(user.Email), syntheticEmailDomain) {
		subject, plain := bookingEmailText(data)
		var html bytes.Buffer
		if err := bookingEmailTemplate.Execute(&html, data); err != nil {
			s.log.Error("could not render booking email", "booking_id", b.ID, "error", err)
		}
		s.run(func() {
			if err := s.mailer.SendEmail(user.Email, user.Name, subject, plain, html.String()); err != nil {
				s.log.Warn("booking confirmation email failed", "booking_id", b.ID, "error", err)
			}
		})
	}

	if s.texter != nil {
		if to := ToE164(user.Phone); to != "" {
			body := bookingSMSText(data, b.StartTime.In(s.loc))
			s.run(func() {
				if err := s.texter.SendSMS(to, body); err != nil {
					s.log.Warn("booking confirmation sms failed", "booking_id", b.ID, "error", err)
				}
			})
		}
	}
}

func (s *SenderService) emailData(user entities.User, lang string, lot *entities.Lot, slot entities.Slot, b *entities.Booking, total int64) entities.BookingEmailData {
	if b.TotalPrice > 0 {
		total = b.TotalPrice
	}
	plate := b.VehicleNumber
	lotName := b.ParkingLot.Name
	if lotName == "" && lot != nil {
		lotName = lot.Name
	}
	identifier := b.Slot.Identifier
	if identifier == "" {
		identifier = slot.Identifier
	}
	return entities.BookingEmailData{
		UserName:           user.Name,
		BookingID:          b.ID,
		LotName:            lotName,
		SlotIdentifier:     identifier,
		VehiclePlate:       plate,
		StartTimeFormatted: b.StartTime.In(s.loc).Format("02/01/2006 15:04"),
		EndTimeFormatted:   b.EndTime.In(s.loc).Format("02/01/2006 15:04"),
		TotalFormatted:     utils.FormatVND(total),
		CurrentYear:        s.now().In(s.loc).Year(),
		Language:           lang,
	}
}

func bookingEmailText(d entities.BookingEmailData) (subject, body string) {
	switch d.Language {
	case "en":
		subject = fmt.Sprintf("ParkWise booking confirmed - %s", d.BookingID)
		body = fmt.Sprintf(
			"Hello %s,\n\nYour booking is confirmed.\n\n"+
				"Booking: %s\n"+
				"Parking lot: %s\n"+
				"Slot: %s\n"+
				"From: %s\n"+
				"To: %s\n"+
				"Estimated total: %s\n\n"+
				"Payment is made at the parking lot.\n\n"+
				"ParkWise %d",
			d.UserName, d.BookingID, d.LotName, d.SlotIdentifier,
			d.StartTimeFormatted, d.EndTimeFormatted, d.TotalFormatted, d.CurrentYear,
		)
	default:
		subject = fmt.Sprintf("ParkWise: đặt chỗ thành công - %s", d.BookingID)
		body = fmt.Sprintf(
			"Xin chào %s,\n\nBạn đã đặt chỗ thành công.\n\n"+
				"Mã đặt chỗ: %s\n"+
				"Bãi đỗ: %s\n"+
				"Vị trí: %s\n"+
				"Từ: %s\n"+
				"Đến: %s\n"+
				"Tổng tạm tính: %s\n\n"+
				"Thanh toán tại bãi đỗ xe.\n\n"+
				"ParkWise %d",
			d.UserName, d.BookingID, d.LotName, d.SlotIdentifier,
			d.StartTimeFormatted, d.EndTimeFormatted, d.TotalFormatted, d.CurrentYear,
		)
	}
	return subject, body
}

func bookingSMSText(d entities.BookingEmailData, start time.Time) string {
	if d.Language == "en" {
		return fmt.Sprintf("ParkWise: booking %s confirmed, slot %s at %s from %s.",
			d.BookingID, d.SlotIdentifier, d.LotName, start.Format("02/01 15:04"))
	}
	return fmt.Sprintf("ParkWise: đặt chỗ %s thành công, vị trí %s tại %s từ %s.",
		d.BookingID, d.SlotIdentifier, d.LotName, start.Format("02/01 15:04"))
}

// Package contacts exports residents as vCards for phone address books.
package contacts

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/emersion/go-vcard"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/sms"
)

// Encode writes one vCard 4.0 per record. Phone numbers are written in E.164 form
// when they can be normalized with countryCode, verbatim otherwise.
func Encode(w io.Writer, recs []records.Record, countryCode string) error {
	enc := vcard.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(Card(r, countryCode)); err != nil {
			return fmt.Errorf("%s: %w", config.ErrVCardEncode, err)
		}
	}
	slog.Debug(config.MsgContactsExported,
		config.LogKeyComponent, config.CompContacts,
		config.LogKeyCount, len(recs),
	)
	return nil
}

// Card builds the vCard of a single record.
func Card(r records.Record, countryCode string) vcard.Card {
	card := make(vcard.Card)
	card.SetValue(vcard.FieldFormattedName, r.Name)
	card.SetName(&vcard.Name{GivenName: r.Name})
	card.SetValue(vcard.FieldUID, fmt.Sprintf(config.FormatContactUID, r.ID))

	if r.PhoneNumber != "" {
		phone := r.PhoneNumber
		if e164, ok := sms.NormalizeNumber(phone, countryCode); ok {
			phone = e164
		}
		card.Add(vcard.FieldTelephone, &vcard.Field{
			Value:  phone,
			Params: vcard.Params{vcard.ParamType: {config.VCardTypeCell}},
		})
	}

	if r.DateOfBirth != nil {
		d := r.DateOfBirth
		card.SetValue(vcard.FieldBirthday, fmt.Sprintf(config.FormatVCardDate, d.Year, int(d.Month), d.Day))
	}

	if r.Address != "" || r.VillageName != "" || r.MandalName != "" {
		card.AddAddress(&vcard.Address{
			StreetAddress: r.Address,
			Locality:      r.VillageName,
			Region:        r.MandalName,
		})
	}
	card.SetValue(vcard.FieldNote, fmt.Sprintf(config.VCardNoteFormat, r.VillageName, r.MandalName))

	vcard.ToV4(card)
	return card
}

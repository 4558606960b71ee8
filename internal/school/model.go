package school

import (
	"time"

	"github.com/google/uuid"
)

type School struct {
	ID        uuid.UUID
	Name      string
	City      string
	CreatedAt time.Time
}

// Defaults is the reference list loaded into an empty schools table.
var Defaults = []School{
	{Name: "Ankara Fen Lisesi", City: "Ankara"},
	{Name: "Ankara Ataturk Lisesi", City: "Ankara"},
	{Name: "TED Ankara Koleji", City: "Ankara"},
	{Name: "Galatasaray Lisesi", City: "Istanbul"},
	{Name: "Istanbul Erkek Lisesi", City: "Istanbul"},
	{Name: "Kabatas Erkek Lisesi", City: "Istanbul"},
	{Name: "Izmir Fen Lisesi", City: "Izmir"},
	{Name: "Izmir Bornova Anadolu Lisesi", City: "Izmir"},
	{Name: "Bursa Anadolu Erkek Lisesi", City: "Bursa"},
	{Name: "Eskisehir Fatih Fen Lisesi", City: "Eskisehir"},
	{Name: "Konya Meram Fen Lisesi", City: "Konya"},
	{Name: "Antalya Aksu Fen Lisesi", City: "Antalya"},
	{Name: "Adana Fen Lisesi", City: "Adana"},
	{Name: "Kayseri Fen Lisesi", City: "Kayseri"},
	{Name: "Trabzon Fen Lisesi", City: "Trabzon"},
}

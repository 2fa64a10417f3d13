package content

import (
	"fmt"
	"strings"
)

// Kind names one of the six independently editable content records.
type Kind string

const (
	KindMenu    Kind = "menu"
	KindContact Kind = "contact"
	KindHours   Kind = "hours"
	KindHero    Kind = "hero"
	KindAbout   Kind = "about"
	KindGallery Kind = "gallery"
)

// Kinds lists every record kind in display order.
var Kinds = []Kind{KindMenu, KindContact, KindHours, KindHero, KindAbout, KindGallery}

// ParseKind maps a storage key or URL segment to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

// Record is implemented by the six record types and nothing else.
type Record interface {
	Kind() Kind
	isRecord()
}

type Category struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// MenuItem prices are decimals with two-digit display precision. The store
// does not reject negative prices.
type MenuItem struct {
	ID          int     `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Price       float64 `json:"price" yaml:"price"`
	Description string  `json:"description" yaml:"description"`
}

type Menu struct {
	Categories []Category            `json:"categories" yaml:"categories"`
	Items      map[string][]MenuItem `json:"menuItems" yaml:"menuItems"`
}

// Find returns the item with id in category.
func (m Menu) Find(category string, id int) (MenuItem, bool) {
	for _, it := range m.Items[category] {
		if it.ID == id {
			return it, true
		}
	}
	return MenuItem{}, false
}

type Address struct {
	Street   string `json:"street" yaml:"street"`
	City     string `json:"city" yaml:"city"`
	Postcode string `json:"postcode" yaml:"postcode"`
	Country  string `json:"country" yaml:"country"`
}

type Social struct {
	Facebook  string `json:"facebook" yaml:"facebook"`
	Instagram string `json:"instagram" yaml:"instagram"`
}

type Contact struct {
	Address    Address `json:"address" yaml:"address"`
	Phone      string  `json:"phone" yaml:"phone"`
	Email      string  `json:"email" yaml:"email"`
	Website    string  `json:"website" yaml:"website"`
	BookingURL string  `json:"bookingUrl" yaml:"bookingUrl"`
	Social     Social  `json:"social" yaml:"social"`
}

type DayHours struct {
	Day   string `json:"day" yaml:"day"`
	Hours string `json:"hours" yaml:"hours"`
}

type Hours struct {
	Status      string     `json:"status" yaml:"status"`
	PriceRange  string     `json:"priceRange" yaml:"priceRange"`
	DineOptions []string   `json:"dineOptions" yaml:"dineOptions"`
	Hours       []DayHours `json:"hours" yaml:"hours"`
}

type Slide struct {
	ID          int    `json:"id" yaml:"id"`
	Image       string `json:"image" yaml:"image"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

type Hero struct {
	Slides []Slide `json:"slides" yaml:"slides"`
}

type Feature struct {
	Icon        string `json:"icon" yaml:"icon"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

type About struct {
	Image      string    `json:"image" yaml:"image"`
	Title      string    `json:"title" yaml:"title"`
	Paragraphs []string  `json:"paragraphs" yaml:"paragraphs"`
	Features   []Feature `json:"features" yaml:"features"`
}

type GalleryImage struct {
	Src     string `json:"src" yaml:"src"`
	Alt     string `json:"alt" yaml:"alt"`
	Caption string `json:"caption" yaml:"caption"`
}

type Gallery struct {
	Title  string         `json:"title" yaml:"title"`
	Images []GalleryImage `json:"images" yaml:"images"`
}

func (Menu) Kind() Kind    { return KindMenu }
func (Contact) Kind() Kind { return KindContact }
func (Hours) Kind() Kind   { return KindHours }
func (Hero) Kind() Kind    { return KindHero }
func (About) Kind() Kind   { return KindAbout }
func (Gallery) Kind() Kind { return KindGallery }

func (Menu) isRecord()    {}
func (Contact) isRecord() {}
func (Hours) isRecord()   {}
func (Hero) isRecord()    {}
func (About) isRecord()   {}
func (Gallery) isRecord() {}

// ImageRefs returns every image reference held by r.
func ImageRefs(r Record) []string {
	var refs []string
	add := func(s string) {
		if s != "" {
			refs = append(refs, s)
		}
	}
	switch v := r.(type) {
	case Hero:
		for _, s := range v.Slides {
			add(s.Image)
		}
	case About:
		add(v.Image)
	case Gallery:
		for _, img := range v.Images {
			add(img.Src)
		}
	}
	return refs
}

// NextSlideID returns max existing id + 1, or 1 for an empty list.
func NextSlideID(slides []Slide) int {
	next := 1
	for _, s := range slides {
		if s.ID >= next {
			next = s.ID + 1
		}
	}
	return next
}

// NextItemID returns max existing id + 1, or 1 for an empty list.
func NextItemID(items []MenuItem) int {
	next := 1
	for _, it := range items {
		if it.ID >= next {
			next = it.ID + 1
		}
	}
	return next
}

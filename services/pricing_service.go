package services

import (
	"fmt"
	"strings"

	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/models"
)

const emptyBucketText = "😢 Unfortunately there are no items in your bucket"

// BucketView is the priced, printable state of a bucket.
type BucketView struct {
	Bucket models.Bucket
	Text   string
	Items  string
	Total  int64
	Count  int
	Empty  bool
}

type PricingService struct {
	schedule config.PricingSchedule
	catalog  config.Catalog
}

func NewPricingService(schedule config.PricingSchedule, catalog config.Catalog) *PricingService {
	return &PricingService{schedule: schedule, catalog: catalog}
}

// Price returns the bucket total for n items.
func (s *PricingService) Price(n int) int64 {
	sch := s.schedule
	switch {
	case n <= 0:
		return 0
	case n < sch.BulkThreshold:
		return int64(n) * sch.UnitPrice
	case n < sch.PromoFrom:
		return sch.BulkBase + sch.UnitPrice*int64(n-sch.BulkThreshold)
	case n <= sch.PromoTo:
		return sch.PromoPrice
	default:
		return sch.PromoPrice + sch.UnitPrice*int64(n-sch.PromoTo)
	}
}

func (s *PricingService) Render(b models.Bucket) BucketView {
	n := b.Count()
	if n == 0 {
		return BucketView{Bucket: b, Text: emptyBucketText, Empty: true}
	}

	var items strings.Builder
	for _, pos := range b.Positions() {
		fmt.Fprintf(&items, "<u>Position #%d</u>\nName: <b>%s</b>\nQuantity: <b>%d</b>\n\n",
			pos, s.catalog.Name(int(pos)), b[pos])
	}

	total := s.Price(n)
	var text strings.Builder
	text.WriteString("Your bucket 👇\n\n")
	text.WriteString(items.String())
	fmt.Fprintf(&text, "Bucket total: <b>%d₽</b>", total)

	switch {
	case n == s.schedule.PromoFrom:
		fmt.Fprintf(&text, "\nP.S. <i>With %d bottles the next one is a gift, add it to the bucket for free!</i>", n)
	case n >= s.schedule.PromoTo:
		text.WriteString("\nP.S. <i>One bottle in this order is our gift to you!</i>")
	}

	return BucketView{
		Bucket: b,
		Text:   text.String(),
		Items:  items.String(),
		Total:  total,
		Count:  n,
	}
}

package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"

	"inventory_watch/extract"
	"inventory_watch/models"
)

func testNormalizer() *Normalizer {
	return New("Honda", []string{"Civic", "Civic Hybrid"}, []string{"Sport", "Sport Touring", "EX", "LX"})
}

var raleigh = Source{Dealership: "Leith Honda Raleigh", Location: "Raleigh, NC", Kind: models.InventoryUsed}

func TestNormalize_YearFromURLPath(t *testing.T) {
	c := models.RawCandidate{
		AnchorText: "View details",
		Href:       "https://www.leithhonda.com/used/Honda/2019-Honda-Civic-LX-raleigh-abc123.htm",
	}
	rec := testNormalizer().Normalize(c, raleigh)

	if rec.Year == nil || *rec.Year != 2019 {
		t.Fatalf("expected year 2019, got %v", rec.Year)
	}
	want := models.VehicleRecord{
		Title:         "2019 Honda Civic (LX)",
		Year:          models.IntPtr(2019),
		Make:          "Honda",
		Model:         models.StringPtr("Civic"),
		Trim:          models.StringPtr("LX"),
		URL:           c.Href,
		Dealership:    "Leith Honda Raleigh",
		Location:      "Raleigh, NC",
		InventoryKind: models.InventoryUsed,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_TrivialAnchorFallsBackToGenericTitle(t *testing.T) {
	c := models.RawCandidate{
		AnchorText: "Hybrid",
		Href:       "https://www.leithhonda.com/new/Honda/Civic-Hybrid-abc123.htm",
	}
	rec := testNormalizer().Normalize(c, raleigh)

	if rec.Title != "Honda Civic" {
		t.Fatalf("expected generic title Honda Civic, got %q", rec.Title)
	}
	if rec.Year != nil {
		t.Fatalf("expected no year, got %d", *rec.Year)
	}
	if models.Deref(rec.Model) != "Civic Hybrid" {
		t.Fatalf("expected model from slug, got %q", models.Deref(rec.Model))
	}
}

func TestNormalize_QueryFieldsPreferred(t *testing.T) {
	c := models.RawCandidate{
		AnchorText:  "Hybrid",
		Href:        "https://www.autoparkhonda.com/new-inventory/index.htm?make=Honda&model=Accord&model=Civic%20Hybrid&trim=Sport&trim=EX&normalExteriorColor=Black&normalBodyStyle=Sedan&year=2024",
		ContextText: "Civic Hybrid Sport MSRP $29,845 Sale $28,100",
	}
	rec := testNormalizer().Normalize(c, Source{Dealership: "AutoPark Honda", Location: "Cary, NC", Kind: models.InventoryNew})

	if rec.Title != "2024 Honda Civic Hybrid (Sport, EX) in Black" {
		t.Fatalf("unexpected title %q", rec.Title)
	}
	if models.Deref(rec.BodyStyle) != "Sedan" {
		t.Fatalf("expected body style Sedan, got %q", models.Deref(rec.BodyStyle))
	}
	if models.Deref(rec.Price) != "$29,845" {
		t.Fatalf("expected first price in context, got %q", models.Deref(rec.Price))
	}
}

func TestNormalize_FamilyFollowsSearchedModel(t *testing.T) {
	n := New("Honda", []string{"Accord", "Civic"}, nil)
	accord := Source{Dealership: "AutoPark Honda", Location: "Cary, NC", Kind: models.InventoryNew, Model: "Accord Hybrid"}

	rec := n.Normalize(models.RawCandidate{
		AnchorText: "Hybrid",
		Href:       "https://www.autoparkhonda.com/new/Honda/Hybrid-abc123.htm",
	}, accord)
	if rec.Title != "Honda Accord" {
		t.Fatalf("expected generic title Honda Accord, got %q", rec.Title)
	}

	rec = n.Normalize(models.RawCandidate{
		AnchorText: "Hybrid",
		Href:       "https://www.autoparkhonda.com/new-inventory/index.htm?model=Civic&model=Accord%20Hybrid&year=2025",
	}, accord)
	if models.Deref(rec.Model) != "Accord Hybrid" {
		t.Fatalf("expected query model of the searched family, got %q", models.Deref(rec.Model))
	}
	if rec.Title != "2025 Honda Accord Hybrid" {
		t.Fatalf("unexpected title %q", rec.Title)
	}

	rec = n.Normalize(models.RawCandidate{AnchorText: "Hybrid", Href: "https://www.autoparkhonda.com/new/Honda/x.htm"}, raleigh)
	if rec.Title != "Honda Civic" {
		t.Fatalf("expected configured family without a searched model, got %q", rec.Title)
	}
}

func TestNormalize_VINsInSharedResultsGrid(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
		<div class="results">
			<a href="/new/Honda/2024-Honda-Civic-Sport-a1.htm">2024 Honda Civic Sport</a>
			<span class="vin">VIN 2HGFE2F59RH000001</span> <span>$26,100</span>
			<a href="/new/Honda/2024-Honda-Civic-EX-b2.htm">2024 Honda Civic EX</a>
			<span class="vin">VIN 2HGFE2F59RH000002</span> <span>$27,400</span>
			<a href="/new/Honda/2024-Honda-Civic-LX-c3.htm">2024 Honda Civic LX</a>
		</div>
	</body></html>`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	kw := extract.KeywordsFor("Honda", "Civic", []string{"Civic"}, nil)
	candidates := extract.NewEngine(kw).Extract(doc, "https://www.leithhonda.com/new-inventory/index.htm")
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	var vins, prices []string
	for _, c := range candidates {
		rec := testNormalizer().Normalize(c, raleigh)
		vins = append(vins, models.Deref(rec.VIN))
		prices = append(prices, models.Deref(rec.Price))
	}
	if diff := cmp.Diff([]string{"2HGFE2F59RH000001", "2HGFE2F59RH000002", ""}, vins); diff != "" {
		t.Fatalf("each listing must keep its own VIN (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"$26,100", "$27,400", ""}, prices); diff != "" {
		t.Fatalf("each listing must keep its own price (-want +got):\n%s", diff)
	}
}

func TestNormalize_TextCandidate(t *testing.T) {
	c := models.RawCandidate{
		AnchorText:  "2021 Honda Civic Sport Touring - $27,500",
		Href:        "https://www.leithhonda.com/new-inventory/index.htm?make=Honda&model=Civic&year=2010",
		Price:       "$27,500",
		Placeholder: true,
	}
	rec := testNormalizer().Normalize(c, raleigh)

	if rec.Year == nil || *rec.Year != 2021 {
		t.Fatalf("expected year 2021 from text, got %v", rec.Year)
	}
	if models.Deref(rec.Trim) != "Sport Touring" {
		t.Fatalf("expected longest trim match, got %q", models.Deref(rec.Trim))
	}
	if !rec.URLIsPage {
		t.Fatal("expected placeholder url to be flagged")
	}
	if rec.Title != "2021 Honda Civic (Sport Touring)" {
		t.Fatalf("unexpected title %q", rec.Title)
	}
}

func TestNormalize_VINFromMarkup(t *testing.T) {
	c := models.RawCandidate{
		AnchorText: "2022 Honda Civic EX",
		Href:       "https://www.leithhonda.com/new/Honda/2022-Honda-Civic-EX.htm",
		Markup:     `<div><a href="/express/2HGFE1F71NH300001">Buy</a></div>`,
	}
	rec := testNormalizer().Normalize(c, raleigh)
	if models.Deref(rec.VIN) != "2HGFE1F71NH300001" {
		t.Fatalf("unexpected VIN %q", models.Deref(rec.VIN))
	}
}

func TestNormalize_ImplausibleYearIgnored(t *testing.T) {
	c := models.RawCandidate{
		AnchorText: "Honda Civic stock 20345",
		Href:       "https://www.leithhonda.com/used/Honda/Civic-1999.htm?year=1999",
	}
	rec := testNormalizer().Normalize(c, raleigh)
	if rec.Year != nil {
		t.Fatalf("expected no year, got %d", *rec.Year)
	}
	if rec.Title != "Honda Civic stock 20345" {
		t.Fatalf("expected anchor title, got %q", rec.Title)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := testNormalizer()
	c := models.RawCandidate{
		AnchorText:  "2020 Honda Civic Sport",
		Href:        "https://www.leithhonda.com/used/Honda/2020-Honda-Civic-Sport-xyz.htm?trim=Sport",
		ContextText: "2020 Honda Civic Sport $21,990",
		Markup:      "<li>2020 Honda Civic Sport $21,990</li>",
	}

	first, err := json.Marshal(n.Normalize(c, raleigh))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	second, err := json.Marshal(n.Normalize(c, raleigh))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("normalization not idempotent:\n%s\n%s", first, second)
	}
}

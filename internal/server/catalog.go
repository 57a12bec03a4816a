// ABOUTME: Keyword retrieval over the canned laptop catalogue
// ABOUTME: Ports the budget extraction and preference filters of the retrieval pipeline

package server

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Product is one catalogue entry.
type Product struct {
	SKU         string  `json:"sku"`
	Vendor      string  `json:"vendor"`
	Family      string  `json:"family"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CPU         string  `json:"cpu"`
	GPU         string  `json:"gpu"`
	RAM         string  `json:"ram"`
	Storage     string  `json:"storage"`
	Price       float64 `json:"price"`
}

// ScoredProduct is a catalogue entry with retrieval scoring attached.
type ScoredProduct struct {
	Product
	Similarity      float64  `json:"similarity"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

// RetrievalResult is the outcome of one catalogue search.
type RetrievalResult struct {
	Products  []ScoredProduct
	LatencyMS float64
	Filters   map[string]any
}

// Catalog answers keyword searches over a fixed product set.
type Catalog struct {
	products     []Product
	keywordIndex map[string]map[string]bool // token -> set of SKUs
}

// NewCatalog builds a catalog over the given products. Pass nil for the
// built-in demo catalogue.
func NewCatalog(products []Product) *Catalog {
	if products == nil {
		products = demoProducts
	}
	c := &Catalog{products: products}
	c.keywordIndex = buildKeywordIndex(products)
	return c
}

var termPattern = regexp.MustCompile(`[a-zA-Z0-9\-\+\.]+`)

func extractTerms(text string) []string {
	return termPattern.FindAllString(strings.ToLower(text), -1)
}

func buildKeywordIndex(products []Product) map[string]map[string]bool {
	index := map[string]map[string]bool{}
	for _, p := range products {
		fields := strings.Join([]string{p.Name, p.Description, p.CPU, p.GPU, p.RAM, p.Storage}, " ")
		for _, token := range extractTerms(fields) {
			if len(token) <= 2 {
				continue
			}
			if index[token] == nil {
				index[token] = map[string]bool{}
			}
			index[token][p.SKU] = true
		}
	}
	return index
}

// Budget phrasings like "under $1500", "max 2000", "below 1,400 usd",
// "1500 or less".
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:under|below|max|maximum|up\s+to)\s*\$?\s*([0-9,]+(?:\.[0-9]{2})?)\s*(?:usd|dollars?)?`),
	regexp.MustCompile(`\$?\s*([0-9,]+(?:\.[0-9]{2})?)\s*(?:or\s+)?(?:less|under|below|max)`),
}

// ExtractMaxPrice pulls a maximum price constraint out of a natural
// language query. Returns 0, false when none is found.
func ExtractMaxPrice(query string) (float64, bool) {
	lower := strings.ToLower(query)
	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(lower)
		if match == nil {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return price, true
	}
	return 0, false
}

// EnrichPreferences copies the preferences and adds a price_max extracted
// from the query text, unless the caller already specified one.
func EnrichPreferences(message string, prefs map[string]any) map[string]any {
	enriched := map[string]any{}
	for k, v := range prefs {
		enriched[k] = v
	}
	if _, ok := enriched["price_max"]; !ok {
		if price, found := ExtractMaxPrice(message); found {
			enriched["price_max"] = price
		}
	}
	return enriched
}

type priceRange struct {
	low  float64
	high *float64
}

type filters struct {
	price  *priceRange
	vendor string
	gpu    string
	family string
}

// applied reports the filters in the wire shape surfaced in metadata frames.
func (f filters) applied() map[string]any {
	out := map[string]any{}
	if f.price != nil {
		high := any(nil)
		if f.price.high != nil {
			high = *f.price.high
		}
		out["price_range"] = []any{f.price.low, high}
	}
	if f.vendor != "" {
		out["vendor"] = f.vendor
	}
	if f.gpu != "" {
		out["gpu"] = f.gpu
	}
	if f.family != "" {
		out["family"] = f.family
	}
	return out
}

func parseFilters(prefs map[string]any) filters {
	var f filters
	low, hasLow := numericPref(prefs["price_min"])
	high, hasHigh := numericPref(prefs["price_max"])
	if hasLow || hasHigh {
		pr := &priceRange{low: 0}
		if hasLow {
			pr.low = low
		}
		if hasHigh {
			pr.high = &high
		}
		f.price = pr
	}
	f.vendor = stringPref(prefs["vendor"])
	f.gpu = stringPref(prefs["gpu"])
	f.family = stringPref(prefs["family"])
	return f
}

func numericPref(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func stringPref(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func (f filters) passes(p Product) bool {
	if f.price != nil {
		if p.Price < f.price.low {
			return false
		}
		if f.price.high != nil && p.Price > *f.price.high {
			return false
		}
	}
	if f.vendor != "" && !strings.Contains(strings.ToLower(p.Vendor), f.vendor) {
		return false
	}
	if f.gpu != "" && !strings.Contains(strings.ToLower(p.GPU), f.gpu) {
		return false
	}
	if f.family != "" && !strings.Contains(strings.ToLower(p.Family), f.family) {
		return false
	}
	return true
}

// Search scores the catalogue against the query, applies preference filters,
// and returns the topK matches sorted by score.
func (c *Catalog) Search(query string, prefs map[string]any, topK int) (RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return RetrievalResult{}, fmt.Errorf("query text must not be empty")
	}
	if topK <= 0 {
		topK = 5
	}

	start := time.Now()
	f := parseFilters(prefs)
	queryTokens := extractTerms(query)

	var scored []ScoredProduct
	for _, p := range c.products {
		if !f.passes(p) {
			continue
		}
		score, matched := c.keywordScore(queryTokens, p.SKU)
		scored = append(scored, ScoredProduct{
			Product:         p,
			Similarity:      score,
			MatchedKeywords: matched,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].SKU < scored[j].SKU
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	return RetrievalResult{
		Products:  scored,
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		Filters:   f.applied(),
	}, nil
}

// keywordScore counts distinct query tokens indexed to the SKU. The bonus
// per token is small and the total capped so a long query can't run away.
func (c *Catalog) keywordScore(queryTokens []string, sku string) (float64, []string) {
	seen := map[string]bool{}
	var matched []string
	for _, token := range queryTokens {
		if seen[token] {
			continue
		}
		seen[token] = true
		if c.keywordIndex[token][sku] {
			matched = append(matched, token)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}
	sort.Strings(matched)
	score := float64(len(matched)) * 0.05
	if score > 0.2 {
		score = 0.2
	}
	return score, matched
}

// demoProducts is the built-in catalogue used when no product file is
// supplied. Prices and specs are representative, not live data.
var demoProducts = []Product{
	{
		SKU: "LAP-AERO14", Vendor: "Gigabyte", Family: "Aero", Name: "Aero 14 OLED",
		Description: "Slim creator laptop with a color-accurate OLED panel for photo and video work",
		CPU: "Intel Core i7-13700H", GPU: "NVIDIA RTX 4050", RAM: "16GB DDR5", Storage: "1TB NVMe SSD",
		Price: 1399,
	},
	{
		SKU: "LAP-BLADE16", Vendor: "Razer", Family: "Blade", Name: "Blade 16",
		Description: "Premium gaming laptop with a dual-mode display and CNC aluminum chassis",
		CPU: "Intel Core i9-14900HX", GPU: "NVIDIA RTX 4080", RAM: "32GB DDR5", Storage: "2TB NVMe SSD",
		Price: 2999,
	},
	{
		SKU: "LAP-G14", Vendor: "ASUS", Family: "ROG Zephyrus", Name: "ROG Zephyrus G14",
		Description: "Compact 14 inch gaming laptop balancing portability and frame rates",
		CPU: "AMD Ryzen 9 8945HS", GPU: "NVIDIA RTX 4060", RAM: "16GB DDR5", Storage: "1TB NVMe SSD",
		Price: 1599,
	},
	{
		SKU: "LAP-GRAM17", Vendor: "LG", Family: "Gram", Name: "Gram 17",
		Description: "Featherweight 17 inch ultrabook for travel with all-day battery life",
		CPU: "Intel Core Ultra 7 155H", GPU: "Intel Arc integrated", RAM: "16GB LPDDR5", Storage: "1TB NVMe SSD",
		Price: 1499,
	},
	{
		SKU: "LAP-IDEAPAD5", Vendor: "Lenovo", Family: "IdeaPad", Name: "IdeaPad Slim 5",
		Description: "Budget friendly student laptop for notes, browsing, and coursework",
		CPU: "AMD Ryzen 5 7530U", GPU: "AMD Radeon integrated", RAM: "16GB DDR4", Storage: "512GB NVMe SSD",
		Price: 649,
	},
	{
		SKU: "LAP-MBA15", Vendor: "Apple", Family: "MacBook Air", Name: "MacBook Air 15",
		Description: "Fanless everyday laptop with a large display and long battery life",
		CPU: "Apple M3", GPU: "Apple 10-core GPU", RAM: "16GB unified", Storage: "512GB SSD",
		Price: 1499,
	},
	{
		SKU: "LAP-SWIFT3", Vendor: "Acer", Family: "Swift", Name: "Swift Go 14",
		Description: "Affordable thin-and-light for general productivity and video calls",
		CPU: "Intel Core Ultra 5 125H", GPU: "Intel Arc integrated", RAM: "16GB LPDDR5", Storage: "512GB NVMe SSD",
		Price: 799,
	},
	{
		SKU: "LAP-XPS16", Vendor: "Dell", Family: "XPS", Name: "XPS 16",
		Description: "Workstation class creator laptop with OLED touch display for heavy editing",
		CPU: "Intel Core Ultra 9 185H", GPU: "NVIDIA RTX 4070", RAM: "32GB LPDDR5", Storage: "1TB NVMe SSD",
		Price: 2499,
	},
}

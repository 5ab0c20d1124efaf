package model

import (
	"math"
	"time"
)

// Reading je jedno uložené měření teploty.
// Vzniká pouze v ingest službě a po zápisu se už nemění.
type Reading struct {
	ID    int64   `json:"id"`
	Value float64 `json:"value"` // °C

	// ThresholdValue je snímek limitu platného v okamžiku zápisu.
	// Pointer, protože limit ještě nemusí existovat (NULL v DB).
	ThresholdValue *float64 `json:"threshold_value"`

	RecordedAt time.Time `json:"recorded_at"`
}

// Exceeded říká, jestli hodnota překročila limit platný při zápisu.
func (r Reading) Exceeded() bool {
	return r.ThresholdValue != nil && r.Value > *r.ThresholdValue
}

// Threshold je jeden záznam v append-only logu limitů.
// "Aktuální" limit je vždy řádek s nejvyšším (CreatedAt, ID).
type Threshold struct {
	ID        int64     `json:"id"` // sekvence, rozhoduje shodu CreatedAt
	Value     float64   `json:"value"`
	Note      *string   `json:"note"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// LiveReading je poslední hodnota přijatá z brokera na straně klienta.
// Nepersistuje se, každá nová zpráva ji přepíše.
type LiveReading struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Actor je volající, který chce měnit limity.
type Actor struct {
	ID                  string
	CanMutateThresholds bool
}

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageQuery popisuje jednu stránku historie.
// AsOf > 0 ukotví stránkování k ID z první stránky, takže nové inserty mezi
// dotazy nezpůsobí duplicitu ani přeskočení řádků.
type PageQuery struct {
	Page     int
	PageSize int
	AsOf     int64
}

// Normalize doplní defaulty a ořízne velikost stránky.
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.AsOf < 0 {
		q.AsOf = 0
	}
	return q
}

// Offset vrací počet řádků, které se přeskočí. Při přetečení vrací
// math.MaxInt, takže obří číslo stránky dá prázdnou stránku.
func (q PageQuery) Offset() int {
	if q.Page <= 1 || q.PageSize <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.PageSize {
		return math.MaxInt
	}
	return (q.Page - 1) * q.PageSize
}

// ReadingPage je výsledek dotazu na historii.
// TotalCount se počítá samostatným dotazem a je konzistentní s Items jen
// best-effort (při souběžných zápisech se může lišit).
type ReadingPage struct {
	Items      []Reading `json:"items"`
	TotalCount int64     `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	AsOf       int64     `json:"as_of"`
}

// ClearResult popisuje hromadné smazání historie.
// ThroughID je nejvyšší smazané ID (0 pro prázdnou historii); cache podle něj
// odmítne měření, která už v DB nejsou.
type ClearResult struct {
	Deleted   int64
	ThroughID int64
}

// IsFinite vrací true pro běžné číslo (ne NaN, ne ±Inf).
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package biz

import (
	"fmt"
	"strings"
	"time"
)

// PredicateKind 支持的过滤条件
type PredicateKind int

const (
	PredFilenameContains PredicateKind = iota + 1
	PredContentTypeContains
	PredSizeAtLeast
	PredSizeAtMost
	PredUploadedAfter
	PredUploadedBefore
	PredDuplicateIs
)

// Predicate is one typed filter over FileRecord attributes. Only the field
// matching Kind is meaningful.
type Predicate struct {
	Kind PredicateKind
	Text string
	Size int64
	Time time.Time
	Flag bool
}

// FilenameContains matches a case-insensitive substring of the original filename
func FilenameContains(s string) Predicate {
	return Predicate{Kind: PredFilenameContains, Text: s}
}

// ContentTypeContains matches a case-insensitive substring of the content type
func ContentTypeContains(s string) Predicate {
	return Predicate{Kind: PredContentTypeContains, Text: s}
}

// SizeAtLeast matches records of at least n bytes
func SizeAtLeast(n int64) Predicate {
	return Predicate{Kind: PredSizeAtLeast, Size: n}
}

// SizeAtMost matches records of at most n bytes
func SizeAtMost(n int64) Predicate {
	return Predicate{Kind: PredSizeAtMost, Size: n}
}

// UploadedAfter matches records uploaded at or after t
func UploadedAfter(t time.Time) Predicate {
	return Predicate{Kind: PredUploadedAfter, Time: t}
}

// UploadedBefore matches records uploaded strictly before t
func UploadedBefore(t time.Time) Predicate {
	return Predicate{Kind: PredUploadedBefore, Time: t}
}

// DuplicateIs matches on the duplicate flag
func DuplicateIs(v bool) Predicate {
	return Predicate{Kind: PredDuplicateIs, Flag: v}
}

func (p Predicate) validate() error {
	switch p.Kind {
	case PredFilenameContains, PredContentTypeContains:
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("%w: empty search text", ErrInvalidInput)
		}
	case PredSizeAtLeast, PredSizeAtMost:
		if p.Size < 0 {
			return fmt.Errorf("%w: negative size bound", ErrInvalidInput)
		}
	case PredUploadedAfter, PredUploadedBefore:
		if p.Time.IsZero() {
			return fmt.Errorf("%w: missing date bound", ErrInvalidInput)
		}
	case PredDuplicateIs:
	default:
		return fmt.Errorf("%w: unknown predicate %d", ErrInvalidInput, p.Kind)
	}
	return nil
}

// OrderField 排序字段
type OrderField string

const (
	OrderUploadedAt       OrderField = "uploaded_at"
	OrderOriginalFilename OrderField = "original_filename"
	OrderSize             OrderField = "size"
)

// Ordering 排序方式
type Ordering struct {
	Field OrderField
	Desc  bool
}

// DefaultOrdering lists newest uploads first
var DefaultOrdering = Ordering{Field: OrderUploadedAt, Desc: true}

// ParseOrdering parses "field" or "-field". An empty string yields DefaultOrdering.
func ParseOrdering(s string) (Ordering, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultOrdering, nil
	}

	o := Ordering{}
	if strings.HasPrefix(s, "-") {
		o.Desc = true
		s = s[1:]
	}

	switch OrderField(s) {
	case OrderUploadedAt, OrderOriginalFilename, OrderSize:
		o.Field = OrderField(s)
	default:
		return Ordering{}, fmt.Errorf("%w: unsupported ordering %q", ErrInvalidInput, s)
	}
	return o, nil
}

// ListQuery composes predicates conjunctively
type ListQuery struct {
	Predicates []Predicate
	Order      Ordering
	Page       int
	PageSize   int
}

// Validate checks every predicate and the ordering
func (q *ListQuery) Validate() error {
	for _, p := range q.Predicates {
		if err := p.validate(); err != nil {
			return err
		}
	}

	switch q.Order.Field {
	case "":
		q.Order = DefaultOrdering
	case OrderUploadedAt, OrderOriginalFilename, OrderSize:
	default:
		return fmt.Errorf("%w: unsupported ordering %q", ErrInvalidInput, q.Order.Field)
	}
	return nil
}

// SizeBucket is a half-open size range [Min, Max); Max 0 means unbounded
type SizeBucket struct {
	Label string
	Min   int64
	Max   int64
}

// DefaultSizeBuckets 文件大小分布区间
var DefaultSizeBuckets = []SizeBucket{
	{Label: "0-1KB", Min: 0, Max: 1 << 10},
	{Label: "1KB-1MB", Min: 1 << 10, Max: 1 << 20},
	{Label: "1MB-10MB", Min: 1 << 20, Max: 10 << 20},
	{Label: "10MB-100MB", Min: 10 << 20, Max: 100 << 20},
	{Label: "100MB+", Min: 100 << 20},
}

// DateBucket is a half-open time range [From, To); zero bounds are open
type DateBucket struct {
	Label string
	From  time.Time
	To    time.Time
}

// DateBuckets returns disjoint upload-date ranges relative to now
func DateBuckets(now time.Time) []DateBucket {
	now = now.UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	return []DateBucket{
		{Label: "today", From: startOfDay},
		{Label: "last_7_days", From: weekAgo, To: startOfDay},
		{Label: "last_30_days", From: monthAgo, To: weekAgo},
		{Label: "older", To: monthAgo},
	}
}

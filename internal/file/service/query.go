package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/filevault-backend/internal/file/biz"
)

const dateLayout = "2006-01-02"

// toListQuery 将查询参数转换为谓词组合
func (r *ListFilesRequest) toListQuery() (*biz.ListQuery, error) {
	q := &biz.ListQuery{Page: r.Page, PageSize: r.PageSize}

	if s := strings.TrimSpace(r.Search); s != "" {
		q.Predicates = append(q.Predicates, biz.FilenameContains(s))
	}
	if s := strings.TrimSpace(r.FileType); s != "" {
		q.Predicates = append(q.Predicates, biz.ContentTypeContains(s))
	}
	if r.MinSize != nil {
		q.Predicates = append(q.Predicates, biz.SizeAtLeast(*r.MinSize))
	}
	if r.MaxSize != nil {
		q.Predicates = append(q.Predicates, biz.SizeAtMost(*r.MaxSize))
	}
	if r.StartDate != "" {
		t, _, err := parseDate(r.StartDate)
		if err != nil {
			return nil, fmt.Errorf("start_date: %w", err)
		}
		q.Predicates = append(q.Predicates, biz.UploadedAfter(t))
	}
	if r.EndDate != "" {
		t, dateOnly, err := parseDate(r.EndDate)
		if err != nil {
			return nil, fmt.Errorf("end_date: %w", err)
		}
		// 仅日期时包含当天
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		q.Predicates = append(q.Predicates, biz.UploadedBefore(t))
	}
	if r.IsDuplicate != nil {
		q.Predicates = append(q.Predicates, biz.DuplicateIs(*r.IsDuplicate))
	}

	order, err := biz.ParseOrdering(r.Ordering)
	if err != nil {
		return nil, err
	}
	q.Order = order

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// parseDate accepts YYYY-MM-DD (UTC midnight) or RFC 3339
func parseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: invalid date %q", biz.ErrInvalidInput, s)
	}
	return t.UTC(), false, nil
}

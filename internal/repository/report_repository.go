package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctor-voice-api/internal/models"
)

// ReportFilter narrows the per-language projection.
type ReportFilter struct {
	Status []models.SubmissionStatus
	MRCode string
	From   *time.Time
	To     *time.Time
}

// ReportRepository reads denormalised projections for reporting.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// LanguageRows returns one row per (submission, selected language), in the
// order the languages were selected.
func (r *ReportRepository) LanguageRows(ctx context.Context, filter ReportFilter) ([]models.LanguageReportRow, error) {
	query := strings.Builder{}
	query.WriteString(`
SELECT
	s.id AS submission_id,
	s.doctor_name,
	s.doctor_phone,
	s.mr_code,
	s.mr_name,
	l.code AS language_code,
	s.status AS submission_status,
	s.consent_status,
	s.voice_clone_status,
	s.qc_status,
	a.status AS audio_status,
	a.public_url AS audio_url,
	v.status AS video_status,
	v.public_url AS video_url,
	s.created_at,
	s.updated_at,
	s.qc_reviewed_at
FROM submissions s
CROSS JOIN LATERAL unnest(s.selected_languages) WITH ORDINALITY AS l(code, position)
LEFT JOIN generated_audio a ON a.submission_id = s.id AND a.language_code = l.code
LEFT JOIN generated_videos v ON v.submission_id = s.id AND v.language_code = l.code
WHERE 1=1`)

	var args []interface{}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&query, " AND s.status IN (%s)", strings.Join(placeholders, ","))
	} else {
		query.WriteString(" AND s.status <> 'deleted'")
	}
	if filter.MRCode != "" {
		args = append(args, filter.MRCode)
		fmt.Fprintf(&query, " AND s.mr_code = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		fmt.Fprintf(&query, " AND s.created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		fmt.Fprintf(&query, " AND s.created_at < $%d", len(args))
	}
	query.WriteString("\nORDER BY s.created_at DESC, s.id, l.position")

	var rows []models.LanguageReportRow
	if err := r.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list language rows: %w", err)
	}
	return rows, nil
}

// CountByStatus groups live submissions by the given column.
func (r *ReportRepository) CountByStatus(ctx context.Context, column string) ([]models.StatusCount, error) {
	allowed := map[string]bool{"status": true, "qc_status": true, "voice_clone_status": true}
	if !allowed[column] {
		return nil, fmt.Errorf("unsupported status column %q", column)
	}
	query := fmt.Sprintf(`SELECT %s AS status, COUNT(*) AS count FROM submissions WHERE status <> 'deleted' GROUP BY %s ORDER BY %s`, column, column, column)
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count submissions by %s: %w", column, err)
	}
	return counts, nil
}

// CountVideosByStatus groups video rows of live submissions by status.
func (r *ReportRepository) CountVideosByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT v.status, COUNT(*) AS count FROM generated_videos v
JOIN submissions s ON s.id = v.submission_id
WHERE s.status <> 'deleted'
GROUP BY v.status ORDER BY v.status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count videos by status: %w", err)
	}
	return counts, nil
}

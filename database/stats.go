package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// StatusStats aggregates enhancement records sharing a status.
type StatusStats struct {
	Status          string   `json:"status"`
	Count           int64    `json:"count"`
	AvgProcessingMs float64  `json:"avg_processing_ms"`
	AvgFaces        float64  `json:"avg_faces"`
	AvgPSNR         *float64 `json:"avg_psnr,omitempty"`
	AvgSSIM         *float64 `json:"avg_ssim,omitempty"`
}

// EnhancementStats groups the enhancements table by status. A non-empty
// batchID restricts the query to that batch.
func EnhancementStats(ctx context.Context, db *sql.DB, batchID string) ([]StatusStats, error) {
	query := psql.Select(
		"status",
		"COUNT(*)",
		"COALESCE(AVG(processing_ms), 0)",
		"COALESCE(AVG(faces_detected), 0)",
		"AVG(psnr)",
		"AVG(ssim)",
	).From("enhancements").GroupBy("status").OrderBy("status ASC")
	if batchID != "" {
		query = query.Where(sq.Eq{"batch_id": batchID})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for EnhancementStats: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enhancement stats: %w", err)
	}
	defer rows.Close()

	var out []StatusStats
	for rows.Next() {
		var (
			s          StatusStats
			psnr, ssim sql.NullFloat64
		)
		if err := rows.Scan(&s.Status, &s.Count, &s.AvgProcessingMs, &s.AvgFaces, &psnr, &ssim); err != nil {
			return nil, fmt.Errorf("failed to scan enhancement stats row: %w", err)
		}
		if psnr.Valid {
			s.AvgPSNR = &psnr.Float64
		}
		if ssim.Valid {
			s.AvgSSIM = &ssim.Float64
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

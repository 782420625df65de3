package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/models"
)

type LogsResponse struct {
	Logs    []models.LogEntry `json:"logs"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

func (a *API) GetLogs(w http.ResponseWriter, r *http.Request) {
	var logs []models.LogEntry
	q := a.db.WithContext(r.Context()).Model(&models.LogEntry{})

	// Pagination
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	// Filters
	if level := r.URL.Query().Get("level"); level != "" {
		q = q.Where("level = ?", level)
	}
	if source := r.URL.Query().Get("source"); source != "" {
		q = q.Where("source = ?", source)
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		q = q.Where("message LIKE ? OR data LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		fail(w, r, err, "Failed to load logs")
		return
	}

	offset := (page - 1) * perPage
	if err := q.Order("created_at DESC").Offset(offset).Limit(perPage).Find(&logs).Error; err != nil {
		fail(w, r, err, "Failed to load logs")
		return
	}

	writeJSON(w, http.StatusOK, LogsResponse{
		Logs:    logs,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (a *API) GetLogSources(w http.ResponseWriter, r *http.Request) {
	sources := []string{}
	err := a.db.WithContext(r.Context()).Model(&models.LogEntry{}).
		Distinct("source").Where("source != ''").Order("source").Pluck("source", &sources).Error
	if err != nil {
		fail(w, r, err, "Failed to load log sources")
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

type BulkDeleteRequest struct {
	IDs []uint `json:"ids"`
}

func (a *API) DeleteLogs(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "No IDs provided")
		return
	}

	result := a.db.WithContext(r.Context()).Delete(&models.LogEntry{}, req.IDs)
	if result.Error != nil {
		fail(w, r, result.Error, "Failed to delete logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": result.RowsAffected})
}

type TimelinePoint struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// Allowed query values. Anything else falls back to a default, so user input
// never reaches the SQL text.
var (
	timelineRanges = map[string]time.Duration{
		"1h":  time.Hour,
		"6h":  6 * time.Hour,
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
	}
	timelineResolutions = map[string]int64{
		"1m":  60,
		"5m":  5 * 60,
		"15m": 15 * 60,
		"1h":  60 * 60,
		"1d":  24 * 60 * 60,
	}
)

// autoResolution keeps a timeline around a hundred points.
func autoResolution(span time.Duration) int64 {
	switch {
	case span <= time.Hour:
		return 60
	case span <= 6*time.Hour:
		return 5 * 60
	case span <= 24*time.Hour:
		return 15 * 60
	default:
		return 60 * 60
	}
}

// bucketExpr returns the SQL expression for a bucket start in epoch seconds.
func (a *API) bucketExpr() string {
	if a.db.Dialector.Name() == "postgres" {
		return "CAST(FLOOR(EXTRACT(EPOCH FROM created_at) / ?) * ? AS BIGINT)"
	}
	return "(CAST(strftime('%s', created_at) AS INTEGER) / ?) * ?"
}

func (a *API) GetLogTimeline(w http.ResponseWriter, r *http.Request) {
	span, ok := timelineRanges[r.URL.Query().Get("range")]
	if !ok {
		span = 24 * time.Hour
	}
	step, ok := timelineResolutions[r.URL.Query().Get("resolution")]
	if !ok {
		step = autoResolution(span)
	}

	var rows []struct {
		Bucket int64
		Count  int
	}
	err := a.db.WithContext(r.Context()).Model(&models.LogEntry{}).
		Select(a.bucketExpr()+" AS bucket, count(*) AS count", step, step).
		Where("created_at >= ?", time.Now().Add(-span)).
		Group("bucket").
		Order("bucket ASC").
		Scan(&rows).Error
	if err != nil {
		fail(w, r, err, "Failed to load log timeline")
		return
	}

	points := make([]TimelinePoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, TimelinePoint{
			Time:  time.Unix(row.Bucket, 0).UTC().Format(time.RFC3339),
			Count: row.Count,
		})
	}
	writeJSON(w, http.StatusOK, points)
}

type DBStats struct {
	LogCount     int64   `json:"log_count"`
	SizeBytes    int64   `json:"size_bytes"`
	MaxSizeBytes int64   `json:"max_size_bytes"`
	UsagePercent float64 `json:"usage_percent"`
}

func (a *API) databaseSize(r *http.Request) (int64, error) {
	db := a.db.WithContext(r.Context())
	var size int64
	if db.Dialector.Name() == "postgres" {
		err := db.Raw("SELECT pg_database_size(current_database())").Scan(&size).Error
		return size, err
	}
	err := db.Raw("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&size).Error
	return size, err
}

func (a *API) GetDBStats(w http.ResponseWriter, r *http.Request) {
	var stats DBStats
	if err := a.db.WithContext(r.Context()).Model(&models.LogEntry{}).Count(&stats.LogCount).Error; err != nil {
		fail(w, r, err, "Failed to load database stats")
		return
	}
	size, err := a.databaseSize(r)
	if err != nil {
		fail(w, r, err, "Failed to load database stats")
		return
	}
	stats.SizeBytes = size
	stats.MaxSizeBytes = a.maxDBSize
	if a.maxDBSize > 0 {
		stats.UsagePercent = float64(size) * 100 / float64(a.maxDBSize)
	}
	writeJSON(w, http.StatusOK, stats)
}

package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite" // 注册纯 Go SQLite 驱动

	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/internal/domain/repository"
)

var tracer = otel.Tracer("vectorindex")

// LoadOptions 索引文件加载选项
type LoadOptions struct {
	// Dim 期望的向量维度，与文件元数据不符则加载失败
	Dim int
	// QuantizedThreshold 条目数超过该值时构建量化索引
	QuantizedThreshold int
	// Distance 精确索引使用的距离实现
	Distance DistanceFunc
	// Device 距离实现对应的执行路径标签
	Device string
}

// FilePath 返回 horizon 对应的索引文件路径
func FilePath(dir string, horizon int) string {
	return filepath.Join(dir, fmt.Sprintf("horizon_%03dh.idx", horizon))
}

// FileSize 返回索引文件大小，用于加载前的预算登记
func FileSize(dir string, horizon int) (int64, error) {
	info, err := os.Stat(FilePath(dir, horizon))
	if err != nil {
		return 0, fmt.Errorf("index file for horizon %dh: %w", horizon, err)
	}
	return info.Size(), nil
}

// LoadFile 读取单个 horizon 的索引文件并构建进程内索引
// 结构完整性（维度、非空、范数抽查）在此强校验，违例立即失败
func LoadFile(ctx context.Context, dir string, horizon int, opts LoadOptions) (repository.VectorIndex, error) {
	path := FilePath(dir, horizon)
	ctx, span := tracer.Start(ctx, "vectorindex.LoadFile",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int("horizon", horizon),
		))
	defer span.End()

	start := time.Now()

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open index file %s: %w", path, err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("index file %s: %w", path, err)
	}
	if meta.dim != opts.Dim {
		return nil, fmt.Errorf("index file %s has dimension %d, configured %d", path, meta.dim, opts.Dim)
	}
	if meta.horizon != horizon {
		return nil, fmt.Errorf("index file %s tagged horizon %dh, expected %dh", path, meta.horizon, horizon)
	}

	entries, err := readEntries(ctx, db, meta.dim)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("index file %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("index file %s is empty", path)
	}

	// 范数抽查：首尾各一条，偏离单位范数说明构建产物损坏
	for _, probe := range []int{0, len(entries) - 1} {
		e := &entries[probe]
		emb := entity.Embedding{Vector: e.Vector}
		if math.Abs(emb.Norm()-1.0) > entity.NormTolerance {
			return nil, fmt.Errorf("index file %s entry %s has norm %.6f", path, e.Identifier, emb.Norm())
		}
	}

	var idx repository.VectorIndex
	if opts.QuantizedThreshold > 0 && len(entries) > opts.QuantizedThreshold {
		idx, err = NewQuantizedIndex(entries, meta.dim)
	} else {
		idx, err = NewFlatIndex(entries, meta.dim, opts.Distance, opts.Device)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("entries", len(entries)),
		attribute.String("index_type", string(idx.Type())),
		attribute.Int64("load_ms", time.Since(start).Milliseconds()),
	)
	return idx, nil
}

type fileMeta struct {
	dim     int
	horizon int
}

// readMeta 读取 index_meta 表
func readMeta(ctx context.Context, db *sql.DB) (*fileMeta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to read index_meta: %w", err)
	}
	defer rows.Close()

	meta := &fileMeta{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		switch key {
		case "dim":
			meta.dim, err = strconv.Atoi(value)
		case "horizon":
			meta.horizon, err = strconv.Atoi(value)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid index_meta %s=%q: %w", key, value, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if meta.dim <= 0 {
		return nil, fmt.Errorf("index_meta missing dim")
	}
	return meta, nil
}

// readEntries 按 rowid 顺序读取全部索引条目
func readEntries(ctx context.Context, db *sql.DB, dim int) ([]entity.IndexEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT identifier, source_time, vector FROM index_entries ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to read index_entries: %w", err)
	}
	defer rows.Close()

	var entries []entity.IndexEntry
	for rows.Next() {
		var (
			identifier string
			sourceTime int64
			blob       []byte
		)
		if err := rows.Scan(&identifier, &sourceTime, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", identifier, err)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("entry %s has dimension %d, meta says %d", identifier, len(vec), dim)
		}
		entries = append(entries, entity.IndexEntry{
			Vector:     vec,
			Identifier: identifier,
			SourceTime: time.Unix(sourceTime, 0).UTC(),
		})
	}
	return entries, rows.Err()
}

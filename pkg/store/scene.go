package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultModel is the detection model used when a scene names none.
const DefaultModel = "yolov8s-worldv2.pt"

// SceneContext maps a scene name to the detection classes worth looking for.
type SceneContext struct {
	ID        uint     `gorm:"primaryKey"`
	SceneName string   `gorm:"uniqueIndex;not null"`
	Classes   []string `gorm:"column:yolo_classes;serializer:json;not null"`
	ModelFile string   `gorm:"size:255"`
}

func (SceneContext) TableName() string { return "scene_context" }

// Context is what a scene resolves to.
type Context struct {
	Scene   string   `json:"scene"`
	Classes []string `json:"classes"`
	Model   string   `json:"model"`
}

// FallbackScenes are seeded into an empty database.
func FallbackScenes() []SceneContext {
	return []SceneContext{
		{SceneName: "living_room", Classes: []string{"person", "chair", "couch", "tv", "potted plant", "cat", "dog"}},
		{SceneName: "bedroom", Classes: []string{"person", "bed", "book", "clock", "cell phone"}},
		{SceneName: "kitchen", Classes: []string{"person", "bottle", "cup", "bowl", "sink", "oven", "refrigerator"}},
		{SceneName: "office", Classes: []string{"person", "chair", "laptop", "mouse", "keyboard", "cell phone"}},
	}
}

// insertScenes inserts scenes, skipping names that already exist.
func insertScenes(db *gorm.DB, scenes []SceneContext) (int64, error) {
	if len(scenes) == 0 {
		return 0, nil
	}
	for i := range scenes {
		if scenes[i].ModelFile == "" {
			scenes[i].ModelFile = DefaultModel
		}
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&scenes, 500)
	return res.RowsAffected, res.Error
}

// ContextFor resolves a scene name to its classes and model. It tries the
// exact name, then the last path segment with underscores as spaces, then
// any stored name contained in (or containing) the query. Unknown scenes
// get ["person"].
func (s *Store) ContextFor(ctx context.Context, scene string) (Context, error) {
	db := s.db.WithContext(ctx)

	simple := scene
	if i := strings.LastIndex(simple, "/"); i >= 0 {
		simple = simple[i+1:]
	}
	simple = strings.ReplaceAll(simple, "_", " ")

	for _, name := range []string{scene, simple} {
		var rows []SceneContext
		if err := db.Where("scene_name = ?", name).Limit(1).Find(&rows).Error; err != nil {
			return Context{}, fmt.Errorf("query scene: %w", err)
		}
		if len(rows) > 0 {
			return rows[0].context(scene), nil
		}
	}

	var all []SceneContext
	if err := db.Order("id").Find(&all).Error; err != nil {
		return Context{}, fmt.Errorf("query scenes: %w", err)
	}
	for _, row := range all {
		if strings.Contains(scene, row.SceneName) || strings.Contains(row.SceneName, scene) {
			return row.context(scene), nil
		}
	}

	return Context{Scene: scene, Classes: []string{"person"}, Model: DefaultModel}, nil
}

func (sc SceneContext) context(query string) Context {
	model := sc.ModelFile
	if model == "" {
		model = DefaultModel
	}
	return Context{Scene: query, Classes: sc.Classes, Model: model}
}

// UpdateScene adds or replaces a mapping. An empty model keeps the stored
// model (or the default for a new scene).
func (s *Store) UpdateScene(ctx context.Context, scene string, classes []string, model string) error {
	row := SceneContext{SceneName: scene, Classes: classes, ModelFile: model}
	columns := []string{"yolo_classes"}
	if model != "" {
		columns = append(columns, "model_file")
	} else {
		row.ModelFile = DefaultModel
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scene_name"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert scene %q: %w", scene, err)
	}
	return nil
}

// Scenes returns every mapping ordered by name.
func (s *Store) Scenes(ctx context.Context) ([]SceneContext, error) {
	var scenes []SceneContext
	if err := s.db.WithContext(ctx).Order("scene_name").Find(&scenes).Error; err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	return scenes, nil
}

// SeedCSV reads a Places365 scene hierarchy export (first column is the
// category, e.g. "/a/airfield") and inserts a mapping for each category and
// its simple name, with classes suggested by SuggestClasses. Existing names
// are left alone. It returns the number of rows inserted.
func (s *Store) SeedCSV(ctx context.Context, r io.Reader) (int64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read csv header: %w", err)
	}

	var rows []SceneContext
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		raw := rec[0]
		name := raw[strings.LastIndex(raw, "/")+1:]
		if name == "" {
			continue
		}
		classes := SuggestClasses(name)
		rows = append(rows, SceneContext{SceneName: raw, Classes: classes})
		if raw != name {
			rows = append(rows, SceneContext{SceneName: name, Classes: classes})
		}
	}

	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = insertScenes(tx, rows)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert scenes: %w", err)
	}
	return n, nil
}

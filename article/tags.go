package article

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// AddTag creates a tag with the given name, or returns the existing tag if
// one with exactly that name already exists (case-sensitive match).
func (s *Store) AddTag(name string) (*Tag, error) {
	var idStr string
	err := s.db.QueryRow("SELECT tag_id FROM tags WHERE name = ?", name).Scan(&idStr)
	if err == nil {
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tag id: %w", err)
		}
		return &Tag{ID: id, Name: name}, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up tag: %w", err)
	}

	tag := &Tag{ID: uuid.New(), Name: name}
	if _, err := s.db.Exec(
		"INSERT INTO tags (tag_id, name) VALUES (?, ?)", tag.ID.String(), name,
	); err != nil {
		return nil, fmt.Errorf("failed to insert tag: %w", err)
	}

	return tag, nil
}

// ChangeTagName renames an existing tag.
func (s *Store) ChangeTagName(id uuid.UUID, name string) error {
	result, err := s.db.Exec("UPDATE tags SET name = ? WHERE tag_id = ?", name, id.String())
	if err != nil {
		return fmt.Errorf("failed to rename tag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTagNotFound
	}
	return nil
}

// Tags lists all tag definitions.
func (s *Store) Tags() ([]Tag, error) {
	rows, err := s.db.Query("SELECT tag_id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var idStr string
		var tag Tag
		if err := rows.Scan(&idStr, &tag.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tag.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tag id: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// TagArticle attaches a tag to an article. Tagging an article that already
// carries the tag is a no-op.
func (s *Store) TagArticle(guid string, tagID uuid.UUID) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO article_tags (guid, tag_id) VALUES (?, ?)",
		guid, tagID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to tag article: %w", err)
	}
	return nil
}

// UntagArticle detaches a tag from an article.
func (s *Store) UntagArticle(guid string, tagID uuid.UUID) error {
	_, err := s.db.Exec(
		"DELETE FROM article_tags WHERE guid = ? AND tag_id = ?",
		guid, tagID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to untag article: %w", err)
	}
	return nil
}

// RemoveTag deletes a tag definition and strips it from every article that
// carries it.
func (s *Store) RemoveTag(tagID uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM article_tags WHERE tag_id = ?", tagID.String()); err != nil {
		return fmt.Errorf("failed to strip tag from articles: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM tags WHERE tag_id = ?", tagID.String()); err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tag removal: %w", err)
	}
	return nil
}

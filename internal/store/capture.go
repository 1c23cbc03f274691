package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Origin records what produced a capture.
type Origin string

const (
	// OriginAuto is a capture fired by the sweep gesture.
	OriginAuto Origin = "auto"
	// OriginManual is a capture requested by the user.
	OriginManual Origin = "manual"
)

// Capture is a stored capture artifact.
type Capture struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Origin    Origin    `json:"origin"`
	Source    string    `json:"source"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Size      int       `json:"size"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// CaptureRepository provides gallery operations on captures.
type CaptureRepository struct {
	db *sql.DB
}

// Captures returns the capture repository for this store.
func (s *Store) Captures() *CaptureRepository {
	return &CaptureRepository{db: s.db}
}

// Add inserts a capture. A missing ID is generated and a zero CreatedAt is set to now.
func (r *CaptureRepository) Add(c *Capture) error {
	if len(c.Data) == 0 {
		return errors.New("capture has no image data")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Origin == "" {
		c.Origin = OriginManual
	}
	if c.Source == "" {
		c.Source = "overlay"
	}
	c.Size = len(c.Data)

	_, err := r.db.Exec(
		`INSERT INTO captures (id, filename, origin, source, width, height, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Filename, string(c.Origin), c.Source, c.Width, c.Height, c.Data, c.CreatedAt.UnixNano(),
	)
	return err
}

// Get retrieves a capture, including its image data, by ID.
func (r *CaptureRepository) Get(id string) (*Capture, error) {
	c := &Capture{}
	var origin string
	var created int64

	err := r.db.QueryRow(
		`SELECT id, filename, origin, source, width, height, data, created_at
		 FROM captures WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Filename, &origin, &c.Source, &c.Width, &c.Height, &c.Data, &created)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c.Origin = Origin(origin)
	c.Size = len(c.Data)
	c.CreatedAt = time.Unix(0, created)
	return c, nil
}

// List returns the gallery most recent first. Image data is omitted.
func (r *CaptureRepository) List() ([]*Capture, error) {
	return r.list(false)
}

// ListWithData returns the gallery most recent first, including image data.
func (r *CaptureRepository) ListWithData() ([]*Capture, error) {
	return r.list(true)
}

func (r *CaptureRepository) list(withData bool) ([]*Capture, error) {
	dataColumn := "NULL"
	if withData {
		dataColumn = "data"
	}

	rows, err := r.db.Query(
		`SELECT id, filename, origin, source, width, height, length(data), created_at, ` + dataColumn + `
		 FROM captures ORDER BY seq DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c := &Capture{}
		var origin string
		var created int64
		var data []byte

		err := rows.Scan(&c.ID, &c.Filename, &origin, &c.Source, &c.Width, &c.Height, &c.Size, &created, &data)
		if err != nil {
			return nil, err
		}

		c.Origin = Origin(origin)
		c.CreatedAt = time.Unix(0, created)
		c.Data = data
		captures = append(captures, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return captures, nil
}

// Count returns the number of captures in the gallery.
func (r *CaptureRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&n)
	return n, err
}

// Delete removes exactly one capture by its ID.
func (r *CaptureRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteAll empties the gallery and returns how many captures were removed.
func (r *CaptureRepository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM captures`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

package sqlds

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/malekhnovich/refine/dataprovider"
)

func newMockProvider(t *testing.T, tables map[string]TableMapping) (*Provider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	p, err := New(Config{DB: db, Tables: tables})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, mock
}

func TestGetOne(t *testing.T) {
	p, mock := newMockProvider(t, nil)

	rows := sqlmock.NewRows([]string{"id", "title"}).AddRow(5, []byte("Hello"))
	mock.ExpectQuery(`SELECT \* FROM posts WHERE id = \?`).
		WithArgs("5").
		WillReturnRows(rows)

	resp, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{
		Resource: "posts",
		ID:       dataprovider.IntID(5),
	})
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if resp.Data["title"] != "Hello" {
		t.Errorf("title = %v, want Hello (byte columns normalized)", resp.Data["title"])
	}
	if len(resp.Raw) == 0 {
		t.Error("Raw envelope should be populated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOneCustomMapping(t *testing.T) {
	p, mock := newMockProvider(t, map[string]TableMapping{
		"posts": {Table: "blog_posts", IDColumn: "post_id"},
	})

	rows := sqlmock.NewRows([]string{"post_id"}).AddRow(7)
	mock.ExpectQuery(`SELECT \* FROM blog_posts WHERE post_id = \?`).
		WithArgs("7").
		WillReturnRows(rows)

	if _, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{
		Resource: "posts",
		ID:       "7",
	}); err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOneNotFound(t *testing.T) {
	p, mock := newMockProvider(t, nil)

	mock.ExpectQuery(`SELECT \* FROM posts WHERE id = \?`).
		WithArgs("99").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts", ID: "99"})
	if !dataprovider.IsStatus(err, 404) {
		t.Errorf("missing row should yield 404, got %v", err)
	}
}

func TestGetOneMissingID(t *testing.T) {
	p, _ := newMockProvider(t, nil)

	_, err := p.GetOne(context.Background(), dataprovider.GetOneRequest{Resource: "posts"})
	if !dataprovider.IsStatus(err, 400) {
		t.Errorf("zero id should fail fast with 400, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without DB or Driver+DSN should fail")
	}
}

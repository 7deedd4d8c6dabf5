package lab

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
)

const sampleMessaging = `{"phone_number_id":"1098765","access_token":"tok","internal_notify_phone":"919000000001","location":{"latitude":17.44,"longitude":78.38,"name":"Labbit Madhapur","address":"Madhapur, Hyderabad"}}`

func TestStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)

	mock.ExpectQuery("SELECT id, name, messaging FROM labs WHERE id").
		WithArgs("lab-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "messaging"}).AddRow("lab-1", "Labbit", []byte(sampleMessaging)))

	cfg, err := store.Get(context.Background(), "lab-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.Messaging.PhoneNumberID != "1098765" || !cfg.HasLocation() || !cfg.Usable() {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if cfg.Messaging.Location.Name != "Labbit Madhapur" {
		t.Fatalf("unexpected location %#v", cfg.Messaging.Location)
	}
}

func TestStoreGetByPhoneNumberIDMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)

	mock.ExpectQuery("FROM labs WHERE messaging->>'phone_number_id'").
		WithArgs("555").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "messaging"}))
	if _, err := store.GetByPhoneNumberID(context.Background(), "555"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank id should be not found")
	}
}

func TestStoreGetCorruptMessaging(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := NewStore(mock)

	mock.ExpectQuery("FROM labs").
		WithArgs("lab-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "messaging"}).AddRow("lab-1", "Labbit", []byte(`{`)))
	if _, err := store.Get(context.Background(), "lab-1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

package repository

import (
	"context"
	"sync"

	"github.com/Dhoini/parking-payments/internal/domain"
)

// ParkingRepository интерфейс для чтения парковок
type ParkingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Parking, error)
}

// VendorRepository интерфейс для чтения вендоров
type VendorRepository interface {
	GetByName(ctx context.Context, name string) (*domain.Vendor, error)
}

// CardRepository интерфейс для работы с привязанными картами
type CardRepository interface {
	// Save создает или обновляет карту по паре (client_id, card_id)
	Save(ctx context.Context, card *domain.CreditCard) error
	GetDefault(ctx context.Context, clientID int64) (*domain.CreditCard, error)
}

// InMemoryDirectory хранит парковки, вендоров и карты в памяти
type InMemoryDirectory struct {
	parkings map[int64]domain.Parking
	vendors  map[string]domain.Vendor
	cards    map[int64][]domain.CreditCard
	nextCard int64
	mutex    sync.RWMutex
}

// NewInMemoryDirectory создает пустой справочник
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		parkings: make(map[int64]domain.Parking),
		vendors:  make(map[string]domain.Vendor),
		cards:    make(map[int64][]domain.CreditCard),
	}
}

// AddParking добавляет парковку
func (d *InMemoryDirectory) AddParking(p domain.Parking) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.parkings[p.ID] = p
}

// AddVendor добавляет вендора
func (d *InMemoryDirectory) AddVendor(v domain.Vendor) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.vendors[v.Name] = v
}

// Parkings возвращает справочник как ParkingRepository
func (d *InMemoryDirectory) Parkings() ParkingRepository { return inMemoryParkings{d} }

// Vendors возвращает справочник как VendorRepository
func (d *InMemoryDirectory) Vendors() VendorRepository { return inMemoryVendors{d} }

// Cards возвращает справочник как CardRepository
func (d *InMemoryDirectory) Cards() CardRepository { return inMemoryCards{d} }

type inMemoryParkings struct{ d *InMemoryDirectory }

func (r inMemoryParkings) GetByID(ctx context.Context, id int64) (*domain.Parking, error) {
	r.d.mutex.RLock()
	defer r.d.mutex.RUnlock()

	p, ok := r.d.parkings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

type inMemoryVendors struct{ d *InMemoryDirectory }

func (r inMemoryVendors) GetByName(ctx context.Context, name string) (*domain.Vendor, error) {
	r.d.mutex.RLock()
	defer r.d.mutex.RUnlock()

	v, ok := r.d.vendors[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

type inMemoryCards struct{ d *InMemoryDirectory }

func (r inMemoryCards) Save(ctx context.Context, card *domain.CreditCard) error {
	r.d.mutex.Lock()
	defer r.d.mutex.Unlock()

	cards := r.d.cards[card.ClientID]
	if card.IsDefault {
		for i := range cards {
			cards[i].IsDefault = false
		}
	}
	for i := range cards {
		if cards[i].CardID == card.CardID {
			card.ID = cards[i].ID
			cards[i] = *card
			r.d.cards[card.ClientID] = cards
			return nil
		}
	}
	r.d.nextCard++
	card.ID = r.d.nextCard
	r.d.cards[card.ClientID] = append(cards, *card)
	return nil
}

func (r inMemoryCards) GetDefault(ctx context.Context, clientID int64) (*domain.CreditCard, error) {
	r.d.mutex.RLock()
	defer r.d.mutex.RUnlock()

	for _, c := range r.d.cards[clientID] {
		if c.IsDefault {
			card := c
			return &card, nil
		}
	}
	return nil, ErrNotFound
}

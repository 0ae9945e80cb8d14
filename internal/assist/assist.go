// Package assist calls the platform's AI assistant and catalog-detail
// endpoints through the authenticated executor.
package assist

import (
	"context"
	"fmt"

	"github.com/plateful/plateful-client/internal/apiclient"
)

// Service exposes typed helpers over the assistant API.
type Service struct {
	api *apiclient.Client
}

// New constructs a Service.
func New(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// ChatReply is the assistant's answer to one chat query.
type ChatReply struct {
	Response    string       `json:"response"`
	Restaurants []Restaurant `json:"restaurants,omitempty"`
	Events      []Event      `json:"events,omitempty"`
	Success     bool         `json:"success"`
}

// Suggestion is one canned conversation opener.
type Suggestion struct {
	ID       int    `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Icon     string `json:"icon"`
}

// MenuItem is one dish on a restaurant's menu.
type MenuItem struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Ingredients []string `json:"ingredients"`
	IsAvailable bool     `json:"is_available"`
}

// Restaurant is the detailed restaurant record.
type Restaurant struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Address     string     `json:"address"`
	Description string     `json:"description"`
	Rating      float64    `json:"rating"`
	Contact     string     `json:"contact"`
	Image       string     `json:"image"`
	Tags        []string   `json:"tags"`
	MenuItems   []MenuItem `json:"menu_items,omitempty"`
}

// Event is the detailed event record.
type Event struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Location    string   `json:"location"`
	Image       string   `json:"image"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// Chat sends one query to the assistant.
func (s *Service) Chat(ctx context.Context, query, userID string) (ChatReply, error) {
	payload := map[string]string{"query": query}
	if userID != "" {
		payload["user_id"] = userID
	}
	res := s.api.Post(ctx, "/ai/chat", payload)
	return apiclient.Decode[ChatReply](res)
}

// Suggestions fetches the canned conversation openers.
func (s *Service) Suggestions(ctx context.Context) ([]Suggestion, error) {
	res := s.api.Get(ctx, "/ai/chat/suggestions")
	envelope, err := apiclient.Decode[struct {
		Suggestions []Suggestion `json:"suggestions"`
	}](res)
	if err != nil {
		return nil, err
	}
	return envelope.Suggestions, nil
}

// Recommend asks for restaurant/event recommendations matching a free-text
// query.
func (s *Service) Recommend(ctx context.Context, query string, limit int) (ChatReply, error) {
	payload := map[string]any{"query": query}
	if limit > 0 {
		payload["limit"] = limit
	}
	res := s.api.Post(ctx, "/ai/recommend", payload)
	return apiclient.Decode[ChatReply](res)
}

// RestaurantDetails fetches one restaurant with its menu.
func (s *Service) RestaurantDetails(ctx context.Context, id int64) (Restaurant, error) {
	res := s.api.Get(ctx, fmt.Sprintf("/restaurants/details/%d", id))
	envelope, err := apiclient.Decode[struct {
		Restaurant Restaurant `json:"restaurant"`
	}](res)
	if err != nil {
		return Restaurant{}, err
	}
	return envelope.Restaurant, nil
}

// EventDetails fetches one event.
func (s *Service) EventDetails(ctx context.Context, id int64) (Event, error) {
	res := s.api.Get(ctx, fmt.Sprintf("/events/details/%d", id))
	envelope, err := apiclient.Decode[struct {
		Event Event `json:"event"`
	}](res)
	if err != nil {
		return Event{}, err
	}
	return envelope.Event, nil
}

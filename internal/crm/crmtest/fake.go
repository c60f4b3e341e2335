// Package crmtest provides an in-memory crm.Gateway that records every call.
package crmtest

import (
	"context"
	"strconv"
	"sync"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
)

// Subscribe records a subscriber create, tag or sequence subscribe call.
type Subscribe struct {
	TargetID  int64
	Email     string
	FirstName string
	State     string
	Fields    crm.Fields
}

// FormAdd records an add-to-form call.
type FormAdd struct {
	FormID       int64
	SubscriberID int64
	Legacy       bool
}

// Update records an UpdateSubscriber call.
type Update struct {
	ID        int64
	FirstName string
	Email     string
	Fields    crm.Fields
}

// Gateway is a fake crm.Gateway. Zero value is ready to use; set the *Err fields to
// make the matching operation fail.
type Gateway struct {
	mu sync.Mutex

	Resources map[crm.ResourceType][]crm.Resource
	ListErr   error
	ListCalls map[crm.ResourceType]int

	SubscriberErr error
	Subscribers   []Subscribe
	FormErr       error
	FormAdds      []FormAdd
	TagErr        error
	Tags          []Subscribe
	SequenceErr   error
	Sequences     []Subscribe

	PurchaseErr error
	PurchaseIDs []string // returned in order; falls back to a counter
	Purchases   []crm.Purchase

	LookupErr error
	Lookups   []string
	UpdateErr error
	Updates   []Update

	nextID int64
}

var _ crm.Gateway = (*Gateway)(nil)

func (g *Gateway) ListResources(ctx context.Context, t crm.ResourceType) ([]crm.Resource, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ListCalls == nil {
		g.ListCalls = map[crm.ResourceType]int{}
	}
	g.ListCalls[t]++
	if g.ListErr != nil {
		return nil, g.ListErr
	}
	return append([]crm.Resource(nil), g.Resources[t]...), nil
}

func (g *Gateway) CreateSubscriber(ctx context.Context, email, firstName, state string, fields crm.Fields) (crm.Subscriber, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Subscribers = append(g.Subscribers, Subscribe{Email: email, FirstName: firstName, State: state, Fields: fields})
	if g.SubscriberErr != nil {
		return crm.Subscriber{}, g.SubscriberErr
	}
	g.nextID++
	return crm.Subscriber{ID: 1000 + g.nextID, Email: email, FirstName: firstName, State: state}, nil
}

func (g *Gateway) AddSubscriberToForm(ctx context.Context, formID, subscriberID int64) error {
	return g.addToForm(formID, subscriberID, false)
}

func (g *Gateway) AddSubscriberToLegacyForm(ctx context.Context, formID, subscriberID int64) error {
	return g.addToForm(formID, subscriberID, true)
}

func (g *Gateway) addToForm(formID, subscriberID int64, legacy bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FormAdds = append(g.FormAdds, FormAdd{FormID: formID, SubscriberID: subscriberID, Legacy: legacy})
	return g.FormErr
}

func (g *Gateway) TagSubscribe(ctx context.Context, tagID int64, email, firstName string, fields crm.Fields) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Tags = append(g.Tags, Subscribe{TargetID: tagID, Email: email, FirstName: firstName, Fields: fields})
	return g.TagErr
}

func (g *Gateway) SequenceSubscribe(ctx context.Context, sequenceID int64, email, firstName string, fields crm.Fields) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Sequences = append(g.Sequences, Subscribe{TargetID: sequenceID, Email: email, FirstName: firstName, Fields: fields})
	return g.SequenceErr
}

func (g *Gateway) CreatePurchase(ctx context.Context, p crm.Purchase) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Purchases = append(g.Purchases, p)
	if g.PurchaseErr != nil {
		return "", g.PurchaseErr
	}
	if n := len(g.Purchases); n <= len(g.PurchaseIDs) {
		return g.PurchaseIDs[n-1], nil
	}
	return strconv.Itoa(len(g.Purchases)), nil
}

func (g *Gateway) GetSubscriberIDByEmail(ctx context.Context, email string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Lookups = append(g.Lookups, email)
	if g.LookupErr != nil {
		return 0, g.LookupErr
	}
	return 77, nil
}

func (g *Gateway) UpdateSubscriber(ctx context.Context, id int64, firstName, email string, fields crm.Fields) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Updates = append(g.Updates, Update{ID: id, FirstName: firstName, Email: email, Fields: fields})
	return g.UpdateErr
}

// PurchaseCount returns the number of CreatePurchase calls so far.
func (g *Gateway) PurchaseCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Purchases)
}

// ListCount returns the number of ListResources calls for t.
func (g *Gateway) ListCount(t crm.ResourceType) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ListCalls[t]
}

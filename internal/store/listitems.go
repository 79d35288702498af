package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/notify"
	"github.com/dukerupert/listio/internal/outbox"
)

// ForeignChangeDelay coalesces item writes made by other processes.
const ForeignChangeDelay = 250 * time.Millisecond

// RemovedRetention is how long a deleted item is hidden from server
// snapshots once its delete is no longer queued.
const RemovedRetention = 10 * time.Minute

// ItemsKey is the storage key of a list's items.
func ItemsKey(listID model.ID) string {
	return localstore.Key("list-items", listID.String())
}

// ListNamer resolves list names for history snapshots.
type ListNamer interface {
	Name(id model.ID) string
}

type removedItem struct {
	item      model.ListItem
	removedAt time.Time
}

// ListItemStore caches the items of the list currently being observed.
// Local mutations are applied and persisted immediately; their remote
// counterparts go through the outbox.
type ListItemStore struct {
	local   localstore.Store
	items   *Collection[model.ListItem]
	gateway api.ListItems
	queue   *outbox.Queue
	proc    *outbox.Processor
	broker  *notify.Broker
	history EventRecorder
	lists   ListNamer
	now     func() time.Time
	delay   time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	listID  model.ID
	removed map[model.ID]removedItem

	sub      *notify.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
	debounce *notify.Debouncer
	latest   *notify.Change
}

type ListItemStoreDeps struct {
	Local   localstore.Store
	Client  *api.Client
	Queue   *outbox.Queue
	Broker  *notify.Broker
	History EventRecorder
	Lists   ListNamer
	Logger  *slog.Logger

	// Interval is the outbox replay period while a list is loaded.
	Interval time.Duration
	// ForeignDelay overrides ForeignChangeDelay.
	ForeignDelay time.Duration
	Now          func() time.Time
}

func NewListItemStore(d ListItemStoreDeps) *ListItemStore {
	if d.History == nil {
		d.History = noRecorder{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ForeignDelay <= 0 {
		d.ForeignDelay = ForeignChangeDelay
	}
	logger := d.Logger.With("component", "list-items")
	s := &ListItemStore{
		local:   d.Local,
		items:   NewCollection(d.Local, "", func(i model.ListItem) model.ID { return i.ID }, logger),
		gateway: d.Client.ListItems(),
		queue:   d.Queue,
		broker:  d.Broker,
		history: d.History,
		lists:   d.Lists,
		now:     d.Now,
		delay:   d.ForeignDelay,
		logger:  logger,
		removed: make(map[model.ID]removedItem),
	}
	s.proc = outbox.NewProcessor(d.Queue, s, d.Interval, d.Logger)
	return s
}

// ListID returns the loaded list, or "" when none is.
func (s *ListItemStore) ListID() model.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listID
}

func (s *ListItemStore) current() (model.ID, error) {
	id := s.ListID()
	if id.IsZero() {
		return "", ErrNoList
	}
	return id, nil
}

// Load makes listID the observed list: its items are read from storage,
// writes to them by other processes are followed and the outbox is replayed
// periodically until Unload. An empty listID unloads.
func (s *ListItemStore) Load(ctx context.Context, listID model.ID) {
	s.Unload()
	if listID.IsZero() {
		return
	}

	s.mu.Lock()
	s.listID = listID
	s.mu.Unlock()

	s.items.SetKey(ItemsKey(listID))
	s.items.Load()

	s.listen(ItemsKey(listID))
	s.proc.Start(ctx)
}

// Unload stops following the current list and halts outbox replay.
func (s *ListItemStore) Unload() {
	s.stopListening()
	s.proc.Stop()

	s.mu.Lock()
	s.listID = ""
	s.mu.Unlock()
	s.items.SetKey("")
	s.items.Reset(nil)
}

// Close releases the background work started by Load.
func (s *ListItemStore) Close() {
	s.Unload()
}

// Observing reports whether a list is loaded and its outbox replay running.
func (s *ListItemStore) Observing() bool {
	return s.proc.Running()
}

func (s *ListItemStore) Save()                                  { s.items.Save() }
func (s *ListItemStore) All() []model.ListItem                  { return s.items.All() }
func (s *ListItemStore) Get(id model.ID) (model.ListItem, bool) { return s.items.Get(id) }

// AddItem prepends item to the current list under a fresh local id and, unless
// opts.Local is set, queues its creation on the server.
func (s *ListItemStore) AddItem(item model.ListItem, opts MutationOptions) (model.ListItem, error) {
	listID, err := s.current()
	if err != nil {
		return model.ListItem{}, err
	}
	if item.ID.IsZero() {
		item.ID = model.NewLocalID(s.now())
	}
	item.ListID = listID
	item = model.NormalizeListItem(item)
	s.items.Add(item)

	if !opts.Local {
		payload, err := createPayload(item)
		if err != nil {
			return item, err
		}
		if err := s.enqueue(outbox.Entry{Op: outbox.OpCreate, ListID: listID, ItemID: item.ID, Payload: payload}); err != nil {
			return item, err
		}
	}
	return item, nil
}

// UpdateItem merges patch into the item and, unless opts.Local is set, queues
// the update on the server.
func (s *ListItemStore) UpdateItem(id model.ID, patch model.Patch, opts MutationOptions) (model.ListItem, error) {
	listID, err := s.current()
	if err != nil {
		return model.ListItem{}, err
	}
	updated, err := s.items.Update(id, patch)
	if err != nil {
		return model.ListItem{}, err
	}

	if !opts.Local {
		payload, err := json.Marshal(patch)
		if err != nil {
			return updated, fmt.Errorf("encode item patch: %w", err)
		}
		if err := s.enqueue(outbox.Entry{Op: outbox.OpUpdate, ListID: listID, ItemID: id, Payload: payload}); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// DeleteItem moves the item to the recently-removed area, records the
// deletion and, unless opts.Local is set, queues it on the server. Deleting
// an item that was already removed is a no-op.
func (s *ListItemStore) DeleteItem(id model.ID, opts MutationOptions) error {
	listID, err := s.current()
	if err != nil {
		return err
	}
	if s.IsRecentlyRemoved(id) {
		return nil
	}
	item, ok := s.items.Delete(id)
	if !ok {
		return fmt.Errorf("delete item %s: %w", id, ErrNotFound)
	}

	s.mu.Lock()
	s.removed[id] = removedItem{item: item, removedAt: s.now()}
	s.mu.Unlock()

	source := "outbox"
	if opts.Local {
		source = "local"
	}
	s.history.RecordEvent("listItem.delete", "listItem", id, map[string]any{
		"name":      nameOr(item.DisplayName(), "Unnamed item"),
		"quantity":  item.Quantity,
		"unit":      item.Unit,
		"purchased": item.Purchased,
		"listName":  s.listName(listID),
		"listId":    listID,
	}, history.Options{ListID: listID, Meta: map[string]any{"source": source}})

	if !opts.Local {
		return s.enqueue(outbox.Entry{Op: outbox.OpDelete, ListID: listID, ItemID: id})
	}
	return nil
}

// IsRecentlyRemoved reports whether id was deleted and not yet purged.
func (s *ListItemStore) IsRecentlyRemoved(id model.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.removed[id]
	return ok
}

// PurgeRemoved forgets removed items older than age and returns how many
// were dropped. Items whose delete is still queued are kept. A zero age
// purges everything.
func (s *ListItemStore) PurgeRemoved(age time.Duration) int {
	queued := make(map[model.ID]bool)
	if age > 0 {
		for _, e := range s.queue.Entries() {
			if e.Op == outbox.OpDelete {
				queued[e.ItemID] = true
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-age)
	n := 0
	for id, r := range s.removed {
		if age == 0 || (r.removedAt.Before(cutoff) && !queued[id]) {
			delete(s.removed, id)
			n++
		}
	}
	return n
}

// DeleteAll drops the stored items of listID.
func (s *ListItemStore) DeleteAll(listID model.ID) {
	if listID.IsZero() {
		return
	}
	if err := s.local.Remove(ItemsKey(listID)); err != nil {
		s.logger.Error("delete list items", "list_id", listID, "error", err)
	}
	if s.ListID() == listID {
		s.items.Reset(nil)
	}
}

// SetItems replaces the items of listID, which need not be loaded.
func (s *ListItemStore) SetItems(listID model.ID, items []model.ListItem) {
	if listID.IsZero() {
		return
	}
	if s.ListID() == listID {
		s.items.Set(items)
		return
	}
	if items == nil {
		items = []model.ListItem{}
	}
	if err := localstore.WriteJSON(s.local, ItemsKey(listID), items); err != nil {
		s.logger.Error("save list items", "list_id", listID, "error", err)
	}
}

// Items returns the stored items of any list.
func (s *ListItemStore) Items(listID model.ID) []model.ListItem {
	if s.ListID() == listID {
		return s.items.All()
	}
	return s.readItems(listID)
}

// MoveItem moves an item between lists. With remote sync the move is queued
// as a delete from the source followed by a create in the destination, and
// the moved record gets a fresh local id to reconcile. An item the server
// has not created yet keeps its id and its queued writes are retargeted. It
// reports whether the item was found.
func (s *ListItemStore) MoveItem(from, to, itemID model.ID, opts MutationOptions) (bool, error) {
	if from.IsZero() || to.IsZero() || itemID.IsZero() {
		return false, fmt.Errorf("move item: source list, destination list and item are required")
	}
	if from == to {
		return false, nil
	}

	src := s.Items(from)
	idx := -1
	for i, it := range src {
		if it.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	item := src[idx]
	src = append(src[:idx:idx], src[idx+1:]...)

	remote := !opts.Local && item.ID.IsSynced()
	if remote {
		item.ID = model.NewLocalID(s.now())
	}
	item.ListID = to
	dest := append([]model.ListItem{item}, s.Items(to)...)

	s.SetItems(from, src)
	s.SetItems(to, dest)

	if !remote {
		if opts.Local || item.ID.IsZero() {
			return true, nil
		}
		// Not on the server yet: its queued create and edits follow it.
		if err := s.queue.RewriteListID(item.ID, to); err != nil {
			return true, fmt.Errorf("move queued writes of item %s: %w", item.ID, err)
		}
		return true, nil
	}
	if err := s.enqueue(outbox.Entry{Op: outbox.OpDelete, ListID: from, ItemID: itemID}); err != nil {
		return true, err
	}
	payload, err := createPayload(item)
	if err != nil {
		return true, err
	}
	return true, s.enqueue(outbox.Entry{Op: outbox.OpCreate, ListID: to, ItemID: item.ID, Payload: payload})
}

// FetchRemote merges the server's items into the current list. Local records
// the server does not know yet are kept in front; server records pending
// deletion are skipped.
func (s *ListItemStore) FetchRemote(ctx context.Context, params url.Values) (api.Page[model.ListItem], error) {
	listID, err := s.current()
	if err != nil {
		return api.Page[model.ListItem]{}, err
	}
	page, err := s.gateway.List(ctx, listID, params)
	if err != nil {
		return page, fallback(s.items, fmt.Errorf("fetch items of list %s: %w", listID, err))
	}

	onServer := make(map[model.ID]bool, len(page.Items))
	for _, it := range page.Items {
		onServer[it.ID] = true
	}

	var merged []model.ListItem
	for _, it := range s.items.All() {
		if !it.ID.IsZero() && !it.ID.IsSynced() && !onServer[it.ID] {
			merged = append(merged, it)
		}
	}
	for _, it := range page.Items {
		if s.IsRecentlyRemoved(it.ID) {
			continue
		}
		merged = append(merged, it)
	}
	if merged == nil {
		merged = []model.ListItem{}
	}
	s.items.Set(merged)
	return page, nil
}

// CreateRemote creates an item directly on the server. A local record for the
// same product line (no product, same name, quantity and unit) is replaced in
// place; otherwise the created item is prepended.
func (s *ListItemStore) CreateRemote(ctx context.Context, payload any) (model.ListItem, error) {
	listID, err := s.current()
	if err != nil {
		return model.ListItem{}, err
	}
	created, err := s.gateway.Create(ctx, listID, payload)
	if err != nil {
		return model.ListItem{}, fmt.Errorf("create item in list %s: %w", listID, err)
	}
	if created.ID.IsZero() {
		return created, nil
	}
	if created.ListID.IsZero() {
		created.ListID = listID
	}

	local, found := s.items.Find(func(it model.ListItem) bool { return sameLine(it, created) })
	if found && s.items.Replace(local.ID, created) {
		return created, nil
	}
	s.items.Add(created)
	return created, nil
}

// UpdateRemote sends patch for itemID and applies the server's answer.
func (s *ListItemStore) UpdateRemote(ctx context.Context, itemID model.ID, patch model.Patch) (model.ListItem, error) {
	listID, err := s.current()
	if err != nil {
		return model.ListItem{}, err
	}
	updated, ok, err := s.gateway.Update(ctx, listID, itemID, patch)
	if err != nil {
		return model.ListItem{}, fmt.Errorf("update item %s: %w", itemID, err)
	}
	return s.applyServer(itemID, updated, ok, patch)
}

// MarkPurchasedRemote toggles the purchased flag on the server.
func (s *ListItemStore) MarkPurchasedRemote(ctx context.Context, itemID model.ID, purchased bool) (model.ListItem, error) {
	listID, err := s.current()
	if err != nil {
		return model.ListItem{}, err
	}
	updated, ok, err := s.gateway.MarkPurchased(ctx, listID, itemID, purchased)
	if err != nil {
		return model.ListItem{}, fmt.Errorf("mark item %s purchased: %w", itemID, err)
	}
	return s.applyServer(itemID, updated, ok, model.Patch{"purchased": purchased})
}

func (s *ListItemStore) applyServer(id model.ID, server model.ListItem, ok bool, patch model.Patch) (model.ListItem, error) {
	if !ok {
		return s.items.Update(id, patch)
	}
	p, err := model.ToPatch(server)
	if err != nil {
		return model.ListItem{}, err
	}
	return s.items.Update(id, p)
}

// DeleteRemote deletes the item on the server and then locally.
func (s *ListItemStore) DeleteRemote(ctx context.Context, itemID model.ID) error {
	listID, err := s.current()
	if err != nil {
		return err
	}
	if err := s.gateway.Delete(ctx, listID, itemID); err != nil {
		return fmt.Errorf("delete item %s: %w", itemID, err)
	}
	if err := s.DeleteItem(itemID, MutationOptions{Local: true}); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// ProcessOutbox replays pending item writes once.
func (s *ListItemStore) ProcessOutbox(ctx context.Context) outbox.Result {
	return s.queue.Process(ctx, s)
}

// Execute performs one outbox entry against the server.
func (s *ListItemStore) Execute(ctx context.Context, e outbox.Entry) error {
	switch e.Op {
	case outbox.OpCreate:
		var payload any
		if len(e.Payload) > 0 {
			payload = e.Payload
		}
		created, err := s.gateway.Create(ctx, e.ListID, payload)
		if err != nil {
			return fmt.Errorf("create item in list %s: %w", e.ListID, err)
		}
		if !created.ID.IsZero() && created.ID != e.ItemID {
			s.reconcile(e.ListID, e.ItemID, created)
		}
		return nil

	case outbox.OpUpdate:
		if !e.ItemID.IsSynced() {
			return fmt.Errorf("update item %s: not created on the server yet", e.ItemID)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = e.Payload
		}
		if _, _, err := s.gateway.Update(ctx, e.ListID, e.ItemID, payload); err != nil {
			return fmt.Errorf("update item %s: %w", e.ItemID, err)
		}
		return nil

	case outbox.OpDelete:
		if !e.ItemID.IsSynced() {
			return fmt.Errorf("delete item %s: not created on the server yet", e.ItemID)
		}
		if err := s.gateway.Delete(ctx, e.ListID, e.ItemID); err != nil && !api.IsStatus(err, 404) {
			return fmt.Errorf("delete item %s: %w", e.ItemID, err)
		}
		s.mu.Lock()
		delete(s.removed, e.ItemID)
		s.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unknown outbox op %q", e.Op)
	}
}

// DeadLettered releases a removed item whose delete gave up, so the next
// server snapshot shows it again.
func (s *ListItemStore) DeadLettered(e outbox.Entry) {
	if e.Op != outbox.OpDelete {
		return
	}
	s.mu.Lock()
	delete(s.removed, e.ItemID)
	s.mu.Unlock()
	s.logger.Warn("item delete abandoned", "list_id", e.ListID, "item_id", e.ItemID)
}

// AfterPass expires removed items once their retention has passed.
func (s *ListItemStore) AfterPass(outbox.Result) {
	if n := s.PurgeRemoved(RemovedRetention); n > 0 {
		s.logger.Debug("purged removed items", "count", n)
	}
}

// reconcile rewrites the optimistic record localID in place with the server's
// fields and points later queue entries at the server id. Updates still
// queued for the record are reapplied so local edits made after the create
// are not lost.
func (s *ListItemStore) reconcile(listID, localID model.ID, server model.ListItem) {
	if server.ListID.IsZero() {
		server.ListID = listID
	}
	var pending []model.Patch
	for _, e := range s.queue.Entries() {
		if e.Op != outbox.OpUpdate || e.ListID != listID || e.ItemID != localID {
			continue
		}
		var p model.Patch
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			pending = append(pending, p)
		}
	}
	adopt := func(items []model.ListItem) ([]model.ListItem, bool) {
		for i, it := range items {
			if it.ID != localID {
				continue
			}
			p, err := model.ToPatch(server)
			if err != nil {
				s.logger.Warn("reconcile item", "item_id", localID, "error", err)
				items[i] = server
				return items, true
			}
			merged, err := model.Merge(it, p)
			if err != nil {
				merged = server
			}
			for _, patch := range pending {
				if m, err := model.Merge(merged, patch); err == nil {
					merged = m
				}
			}
			items[i] = merged
			return items, true
		}
		return items, false
	}

	if s.ListID() == listID {
		s.items.Mutate(func(items []model.ListItem) []model.ListItem {
			items, _ = adopt(items)
			return items
		})
	} else if items, ok := adopt(s.readItems(listID)); ok {
		s.SetItems(listID, items)
	}

	s.mu.Lock()
	if r, ok := s.removed[localID]; ok {
		delete(s.removed, localID)
		r.item.ID = server.ID
		s.removed[server.ID] = r
	}
	s.mu.Unlock()

	if err := s.queue.RewriteItemID(localID, server.ID); err != nil {
		s.logger.Error("rewrite queued item id", "from", localID, "to", server.ID, "error", err)
	}
}

func (s *ListItemStore) enqueue(e outbox.Entry) error {
	if _, err := s.queue.Enqueue(e); err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Op, err)
	}
	return nil
}

func (s *ListItemStore) readItems(listID model.ID) []model.ListItem {
	var items []model.ListItem
	if _, err := localstore.ReadJSON(s.local, ItemsKey(listID), &items); err != nil {
		s.logger.Warn("load list items", "list_id", listID, "error", err)
		return nil
	}
	return items
}

func (s *ListItemStore) listName(listID model.ID) string {
	if s.lists != nil {
		if name := s.lists.Name(listID); name != "" {
			return name
		}
	}
	return "List #" + listID.String()
}

// listen follows writes to key made by other processes. The latest change
// wins once the debounce window closes.
func (s *ListItemStore) listen(key string) {
	if s.broker == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := s.broker.Subscribe(notify.Exact(key))
	done := make(chan struct{})
	debounce := notify.NewDebouncer(s.delay, func() { s.applyForeign(key) })

	s.mu.Lock()
	s.sub, s.cancel, s.done, s.debounce, s.latest = sub, cancel, done, debounce, nil
	s.mu.Unlock()

	go func() {
		defer close(done)
		sub.Consume(ctx, func(c notify.Change) {
			s.mu.Lock()
			s.latest = &c
			s.mu.Unlock()
			debounce.Trigger()
		})
	}()
}

func (s *ListItemStore) applyForeign(key string) {
	s.mu.Lock()
	c := s.latest
	s.latest = nil
	s.mu.Unlock()
	if c == nil || c.Key != key || s.items.Key() != key {
		return
	}

	var items []model.ListItem
	if !c.Deleted && c.Value != "" {
		if err := json.Unmarshal([]byte(c.Value), &items); err != nil {
			s.logger.Warn("decode foreign list items", "key", key, "error", err)
			return
		}
	}
	s.items.Reset(items)
}

func (s *ListItemStore) stopListening() {
	s.mu.Lock()
	sub, cancel, done, debounce := s.sub, s.cancel, s.done, s.debounce
	s.sub, s.cancel, s.done, s.debounce, s.latest = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if sub == nil {
		return
	}
	cancel()
	<-done
	debounce.Stop()
	sub.Close()
}

// createPayload is the create body for item: every field except the ids.
func createPayload(item model.ListItem) (json.RawMessage, error) {
	p, err := payloadOf(item, "id", "listId")
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode item payload: %w", err)
	}
	return data, nil
}

// sameLine matches a productless local record against a created item.
func sameLine(local, created model.ListItem) bool {
	if local.Product != nil && !local.Product.ID.IsZero() {
		return false
	}
	return local.Name == created.DisplayName() &&
		quantityEqual(local.Quantity, created.Quantity) &&
		local.Unit == created.Unit
}

func quantityEqual(a, b decimal.Decimal) bool {
	return a.Equal(b)
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"taskboard/api/internal/config"
	"taskboard/api/internal/lock"
	"taskboard/api/internal/ordering"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

const maxImportItems = 500

type dataStore interface {
	ReadSequence(context.Context, store.ContainerKind, string) (store.Sequence, error)
	WritePositions(context.Context, store.OrderWrite) error
	CreateBoard(context.Context, store.Board) error
	GetBoard(context.Context, string) (store.Board, error)
	ListLists(context.Context, string) ([]store.List, error)
	GetList(context.Context, string) (store.List, error)
	ListCards(context.Context, string) ([]store.Card, error)
	GetCard(context.Context, string) (store.Card, error)
	DeleteCard(context.Context, string) error
	DeleteList(context.Context, string) error
	Ping(context.Context) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	locks  lock.Locker
	engine *ordering.Engine
}

func New(cfg config.Config, dataStore *store.PostgresStore, locker lock.Locker) (*Service, error) {
	engine, err := ordering.New(cfg.Ordering)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		locks:  locker,
		engine: engine,
	}, nil
}

// MoveInput addresses a slot for a moved item. Index counts the other items
// of the destination; Position is a raw key and only applies within the
// item's own container. Destination defaults to the current container.
type MoveInput struct {
	Destination string
	Index       *int
	Position    *float64
}

// orderResult is what a container mutation wrote.
type orderResult struct {
	Container  string
	Updates    []ordering.Update
	Rebalanced bool
}

func (r orderResult) payload() map[string]any {
	updates := make([]map[string]any, 0, len(r.Updates))
	for _, u := range r.Updates {
		updates = append(updates, map[string]any{"id": u.ID, "position": u.Position})
	}
	return map[string]any{
		"ok":          true,
		"containerId": r.Container,
		"updates":     updates,
		"rebalanced":  r.Rebalanced,
	}
}

// orderPlan is the write computed from one read of a container. rebalanced
// is set when the write renumbers existing items rather than only placing
// new or moved ones.
type orderPlan struct {
	write      store.OrderWrite
	rebalanced bool
}

type planFunc func(seq store.Sequence) (orderPlan, error)

// placementPlan wraps the updates of a single insert or move. The engine
// returns exactly one update unless it had to renumber the container.
func placementPlan(write store.OrderWrite) orderPlan {
	return orderPlan{write: write, rebalanced: len(write.Updates) > 1}
}

// mutateContainer serializes read, plan and write for one container. A write
// rejected as stale is planned again from a fresh read.
func (s *Service) mutateContainer(ctx context.Context, kind store.ContainerKind, containerID string, plan planFunc) (orderResult, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait())
	defer cancel()
	unlock, err := s.locks.Lock(lockCtx, string(kind)+":"+containerID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return orderResult{}, wrapDomainError(err, http.StatusServiceUnavailable, "LOCK_TIMEOUT", fmt.Sprintf("%s %s is busy, retry later", kind, containerID))
		}
		return orderResult{}, fmt.Errorf("lock %s %s: %w", kind, containerID, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Printf("unlock %s %s: %v", kind, containerID, err)
		}
	}()

	attempts := s.cfg.MoveRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		seq, err := s.store.ReadSequence(ctx, kind, containerID)
		if err != nil {
			return orderResult{}, err
		}
		planned, err := plan(seq)
		if err != nil {
			return orderResult{}, err
		}
		write := planned.write
		result := orderResult{Container: containerID, Updates: write.Updates, Rebalanced: planned.rebalanced}
		if len(write.Updates) == 0 {
			return result, nil
		}
		write.Kind = kind
		write.ContainerID = containerID
		write.ExpectedVersion = seq.Version

		err = s.store.WritePositions(ctx, write)
		if err == nil {
			if result.Rebalanced {
				log.Printf("rebalanced %s %s: %d positions rewritten", kind, containerID, len(write.Updates))
			}
			return result, nil
		}
		if !errors.Is(err, store.ErrStaleSequence) {
			return orderResult{}, err
		}
		log.Printf("stale %s %s at version %d (attempt %d/%d)", kind, containerID, seq.Version, attempt, attempts)
	}
	return orderResult{}, wrapDomainError(store.ErrStaleSequence, http.StatusConflict, "CONFLICT", fmt.Sprintf("%s %s changed concurrently, refresh and retry", kind, containerID))
}

func (s *Service) lockWait() time.Duration {
	if s.cfg.LockWait > 0 {
		return s.cfg.LockWait
	}
	return 5 * time.Second
}

func (s *Service) CreateBoard(ctx context.Context, name string) (map[string]any, error) {
	boardName := strings.TrimSpace(name)
	if boardName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	board := store.Board{ID: util.NewID("brd"), Name: boardName}
	if err := s.store.CreateBoard(ctx, board); err != nil {
		return nil, err
	}
	return s.GetBoard(ctx, board.ID)
}

// GetBoard returns the board with its lists and their cards, all in position
// order.
func (s *Service) GetBoard(ctx context.Context, boardID string) (map[string]any, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	lists, err := s.store.ListLists(ctx, boardID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(lists))
	for _, list := range lists {
		cards, err := s.store.ListCards(ctx, list.ID)
		if err != nil {
			return nil, err
		}
		payload := listPayload(list)
		payload["cards"] = cardPayloads(cards)
		items = append(items, payload)
	}
	return map[string]any{
		"id":      board.ID,
		"name":    board.Name,
		"version": board.OrderVersion,
		"lists":   items,
	}, nil
}

func (s *Service) ListCards(ctx context.Context, listID string) (map[string]any, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, listID)
	if err != nil {
		return nil, err
	}
	payload := listPayload(list)
	payload["cards"] = cardPayloads(cards)
	return payload, nil
}

// CreateList inserts a list into the board at index, or appends it when index
// is nil.
func (s *Service) CreateList(ctx context.Context, boardID, name string, index *int) (map[string]any, error) {
	listName := strings.TrimSpace(name)
	if listName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	id := util.NewID("lst")
	result, err := s.mutateContainer(ctx, store.KindBoard, boardID, s.insertPlan(id, listName, index))
	if err != nil {
		return nil, err
	}
	payload := result.payload()
	payload["id"] = id
	return payload, nil
}

// CreateCard inserts a card into the list at index, or appends it when index
// is nil.
func (s *Service) CreateCard(ctx context.Context, listID, title string, index *int) (map[string]any, error) {
	cardTitle := strings.TrimSpace(title)
	if cardTitle == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	id := util.NewID("crd")
	result, err := s.mutateContainer(ctx, store.KindList, listID, s.insertPlan(id, cardTitle, index))
	if err != nil {
		return nil, err
	}
	payload := result.payload()
	payload["id"] = id
	return payload, nil
}

func (s *Service) insertPlan(id, label string, index *int) planFunc {
	return func(seq store.Sequence) (orderPlan, error) {
		slot := len(seq.Items)
		if index != nil {
			slot = *index
		}
		updates, err := s.engine.ResolveInsert(seq.Items, id, slot)
		if err != nil {
			return orderPlan{}, err
		}
		return placementPlan(store.OrderWrite{
			Updates: updates,
			Inserts: []store.NewItem{{ID: id, Label: label}},
		}), nil
	}
}

// ImportCards appends titles to the list in one write. A list whose existing
// gaps are already below epsilon is renumbered first.
func (s *Service) ImportCards(ctx context.Context, listID string, titles []string) (map[string]any, error) {
	labels := make([]string, 0, len(titles))
	for _, title := range titles {
		if trimmed := strings.TrimSpace(title); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	if len(labels) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "titles must contain at least one non-empty title", nil)
	}
	if len(labels) > maxImportItems {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("at most %d titles per import", maxImportItems), nil)
	}

	ids := make([]string, len(labels))
	for i := range labels {
		ids[i] = util.NewID("crd")
	}

	result, err := s.mutateContainer(ctx, store.KindList, listID, func(seq store.Sequence) (orderPlan, error) {
		if err := ordering.CheckSequence(seq.Items); err != nil {
			return orderPlan{}, err
		}
		working := append([]ordering.Item(nil), seq.Items...)
		rebalanced := false
		if s.engine.NeedsRebalanceItems(working) {
			working = applyUpdates(working, s.engine.Rebalance(working))
			rebalanced = true
		}

		inserts := make([]store.NewItem, 0, len(labels))
		for i, label := range labels {
			updates, err := s.engine.ResolveInsert(working, ids[i], len(working))
			if err != nil {
				return orderPlan{}, err
			}
			if len(updates) > 1 {
				rebalanced = true
			}
			working = applyUpdates(working, updates)
			inserts = append(inserts, store.NewItem{ID: ids[i], Label: label})
		}
		return orderPlan{
			write: store.OrderWrite{
				Updates: changedUpdates(seq.Items, working),
				Inserts: inserts,
			},
			rebalanced: rebalanced,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	payload := result.payload()
	payload["ids"] = ids
	return payload, nil
}

// MoveList reorders a list within its board, or transfers it to another
// board when input.Destination differs.
func (s *Service) MoveList(ctx context.Context, listID string, input MoveInput) (map[string]any, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	result, err := s.moveItem(ctx, store.KindBoard, listID, list.BoardID, input)
	if err != nil {
		return nil, err
	}
	payload := result.payload()
	payload["id"] = listID
	return payload, nil
}

// MoveCard reorders a card within its list, or transfers it to another list
// when input.Destination differs.
func (s *Service) MoveCard(ctx context.Context, cardID string, input MoveInput) (map[string]any, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	result, err := s.moveItem(ctx, store.KindList, cardID, card.ListID, input)
	if err != nil {
		return nil, err
	}
	payload := result.payload()
	payload["id"] = cardID
	return payload, nil
}

func (s *Service) moveItem(ctx context.Context, kind store.ContainerKind, itemID, sourceID string, input MoveInput) (orderResult, error) {
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		destination = sourceID
	}
	if input.Index == nil && input.Position == nil {
		return orderResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "index or position is required", nil)
	}

	if destination == sourceID {
		return s.mutateContainer(ctx, kind, sourceID, func(seq store.Sequence) (orderPlan, error) {
			var (
				updates []ordering.Update
				err     error
			)
			if input.Index != nil {
				updates, err = s.engine.ResolveMoveToIndex(seq.Items, itemID, *input.Index)
			} else {
				updates, err = s.engine.ResolveMove(seq.Items, itemID, *input.Position)
			}
			if err != nil {
				return orderPlan{}, err
			}
			return placementPlan(store.OrderWrite{Updates: updates}), nil
		})
	}

	if input.Index == nil {
		return orderResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "index is required when moving to another container", nil)
	}
	// Only the destination is locked. The source keeps its positions; the
	// re-parenting write is guarded on the item still being in sourceID.
	return s.mutateContainer(ctx, kind, destination, func(seq store.Sequence) (orderPlan, error) {
		source, err := s.store.ReadSequence(ctx, kind, sourceID)
		if err != nil {
			return orderPlan{}, err
		}
		transfer, err := s.engine.ResolveTransfer(source.Items, seq.Items, itemID, *input.Index)
		if err != nil {
			return orderPlan{}, err
		}
		return placementPlan(store.OrderWrite{
			Updates:  transfer.Updates,
			Transfer: &store.TransferFrom{ItemID: itemID, SourceID: sourceID},
		}), nil
	})
}

// DeleteCard removes the card. The list's remaining positions stay as they
// are; a gap never needs repair.
func (s *Service) DeleteCard(ctx context.Context, cardID string) error {
	return s.store.DeleteCard(ctx, cardID)
}

func (s *Service) DeleteList(ctx context.Context, listID string) error {
	return s.store.DeleteList(ctx, listID)
}

// RebalanceContainer renumbers every item of the container to uniform gaps,
// keeping the current order. Items already at their target are not written.
func (s *Service) RebalanceContainer(ctx context.Context, kind store.ContainerKind, containerID string) (map[string]any, error) {
	var count int
	result, err := s.mutateContainer(ctx, kind, containerID, func(seq store.Sequence) (orderPlan, error) {
		count = len(seq.Items)
		target := applyUpdates(append([]ordering.Item(nil), seq.Items...), s.engine.Rebalance(seq.Items))
		updates := changedUpdates(seq.Items, target)
		return orderPlan{write: store.OrderWrite{Updates: updates}, rebalanced: len(updates) > 0}, nil
	})
	if err != nil {
		return nil, err
	}
	payload := result.payload()
	payload["count"] = count
	return payload, nil
}

// ContainerHealth reports whether the container has run out of precision
// between some pair of neighbours.
func (s *Service) ContainerHealth(ctx context.Context, kind store.ContainerKind, containerID string) (map[string]any, error) {
	seq, err := s.store.ReadSequence(ctx, kind, containerID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"kind":           string(kind),
		"containerId":    containerID,
		"version":        seq.Version,
		"count":          len(seq.Items),
		"needsRebalance": s.engine.NeedsRebalanceItems(seq.Items),
		"minGap":         nil,
		"consistent":     true,
	}
	if gap, ok := minGap(seq.Items); ok {
		payload["minGap"] = gap
	}
	if err := ordering.CheckSequence(seq.Items); err != nil {
		payload["consistent"] = false
		payload["problem"] = err.Error()
	}
	return payload, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingLocks checks the lock backend when it is remote. ok is false for the
// in-process locker, which has nothing to check.
func (s *Service) PingLocks(ctx context.Context) (ok bool, err error) {
	pinger, remote := s.locks.(interface{ Ping(context.Context) error })
	if !remote {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

func applyUpdates(items []ordering.Item, updates []ordering.Update) []ordering.Item {
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.ID] = i
	}
	for _, u := range updates {
		if i, ok := index[u.ID]; ok {
			items[i].Position = u.Position
			continue
		}
		index[u.ID] = len(items)
		items = append(items, ordering.Item{ID: u.ID, Position: u.Position})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
	return items
}

// changedUpdates lists the items of next that are new or moved relative to
// prev, in next's order.
func changedUpdates(prev, next []ordering.Item) []ordering.Update {
	before := make(map[string]float64, len(prev))
	for _, item := range prev {
		before[item.ID] = item.Position
	}
	updates := make([]ordering.Update, 0)
	for _, item := range next {
		if position, ok := before[item.ID]; ok && position == item.Position {
			continue
		}
		updates = append(updates, ordering.Update{ID: item.ID, Position: item.Position})
	}
	return updates
}

func minGap(items []ordering.Item) (float64, bool) {
	if len(items) < 2 {
		return 0, false
	}
	positions := make([]float64, len(items))
	for i, item := range items {
		positions[i] = item.Position
	}
	sort.Float64s(positions)
	gap := math.Inf(1)
	for i := 1; i < len(positions); i++ {
		gap = math.Min(gap, positions[i]-positions[i-1])
	}
	return gap, true
}

func listPayload(list store.List) map[string]any {
	return map[string]any{
		"id":        list.ID,
		"boardId":   list.BoardID,
		"name":      list.Name,
		"position":  list.Position,
		"version":   list.OrderVersion,
		"createdAt": list.CreatedAt,
	}
}

func cardPayloads(cards []store.Card) []map[string]any {
	items := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		items = append(items, map[string]any{
			"id":        card.ID,
			"listId":    card.ListID,
			"title":     card.Title,
			"position":  card.Position,
			"updatedAt": card.UpdatedAt,
		})
	}
	return items
}

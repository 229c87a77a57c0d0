// Package longterm implements the Long-Term Tier (spec §4.5): a thin
// adapter over the Chunker, the Keyword Index, and external vector/graph
// collaborators, with rollback on partial write failure.
package longterm

import (
	"context"
	"sync"

	"github.com/contextcache/hybridmemory/chunker"
	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/ctxerr"
	"github.com/contextcache/hybridmemory/keyword"
	"github.com/contextcache/hybridmemory/types"
)

// Tier owns the id → chunk-ids mapping and the authoritative ContextItem
// record; chunks are indexed in the Keyword Index and embedded into the
// vector store.
type Tier struct {
	mu sync.Mutex

	chunker     chunker.Chunker
	chunkParams chunker.Params
	index       *keyword.Index
	vectors     collaborators.VectorStore
	graph       collaborators.GraphStore // optional: nil disables graph wiring (spec §4.5 "graph_ids?")
	embedder    collaborators.Embedder
	store       RecordStore

	chunkIDs map[string][]string // item id -> indexed/upserted chunk ids
	parentOf map[string]string   // chunk id -> owning item id
}

// New constructs a Tier over its collaborators. graph may be nil: the
// graph-store side of the "id → (vector_id, graph_ids?)" mapping is
// optional per spec §4.5.
func New(ch chunker.Chunker, params chunker.Params, index *keyword.Index, vectors collaborators.VectorStore, graph collaborators.GraphStore, embedder collaborators.Embedder, store RecordStore) *Tier {
	return &Tier{
		chunker:     ch,
		chunkParams: params,
		index:       index,
		vectors:     vectors,
		graph:       graph,
		embedder:    embedder,
		store:       store,
		chunkIDs:    make(map[string][]string),
		parentOf:    make(map[string]string),
	}
}

// Add chunks item's content, indexes each chunk in the Keyword Index,
// embeds and upserts each chunk into the vector store, and persists the
// record. On any collaborator failure it rolls back whatever was already
// added and reports the failure kind (spec §4.5, §7).
func (t *Tier) Add(ctx context.Context, item *types.ContextItem) error {
	chunks := t.chunker.Chunk(item.ID, item.Content, t.chunkParams)
	if len(chunks) == 0 {
		return ctxerr.Invalid("longterm.Add", "content must be non-empty")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := t.embedder.Embed(ctx, texts)
	if err != nil {
		return ctxerr.New("longterm.Add", ctxerr.KindCollaboratorFailure, err)
	}

	var indexed, upserted []string
	rollback := func() {
		for _, cid := range indexed {
			t.index.Remove(cid)
		}
		for _, cid := range upserted {
			_ = t.vectors.Delete(ctx, cid)
		}
	}

	meta := map[string]any{
		types.MetaType: string(item.Kind),
		"parent_id":    item.ID,
	}
	for i, c := range chunks {
		t.index.Index(c.ChunkID, c.Content, meta)
		indexed = append(indexed, c.ChunkID)

		if err := t.vectors.Upsert(ctx, c.ChunkID, vectors[i], meta); err != nil {
			rollback()
			return ctxerr.New("longterm.Add", ctxerr.KindCapacityExhausted, err)
		}
		upserted = append(upserted, c.ChunkID)
	}

	if t.graph != nil {
		if err := t.graph.UpsertEntity(ctx, item.ID, string(item.Kind), meta); err != nil {
			rollback()
			return ctxerr.New("longterm.Add", ctxerr.KindCollaboratorFailure, err)
		}
		for _, cid := range indexed {
			_ = t.graph.UpsertEntity(ctx, cid, "chunk", meta)
			_ = t.graph.UpsertEdge(ctx, item.ID, cid, "has_chunk", nil)
		}
	}

	record := Record{
		ID:            item.ID,
		Content:       item.Content,
		CreatedAt:     item.CreatedAt,
		Priority:      item.Priority,
		Kind:          item.Kind,
		Metadata:      item.Metadata,
		TokenEstimate: item.TokenEstimate,
	}
	if err := t.store.Put(ctx, record); err != nil {
		rollback()
		return ctxerr.New("longterm.Add", ctxerr.KindCapacityExhausted, err)
	}

	t.mu.Lock()
	t.chunkIDs[item.ID] = indexed
	for _, cid := range indexed {
		t.parentOf[cid] = item.ID
	}
	t.mu.Unlock()
	return nil
}

// ParentOf resolves a chunk id (as returned by the Keyword Index or vector
// store) back to the ContextItem id that owns it.
func (t *Tier) ParentOf(chunkID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.parentOf[chunkID]
	return id, ok
}

// Delete cascades removal of id's chunks from the Keyword Index and vector
// store, then its record.
func (t *Tier) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	chunkIDs := t.chunkIDs[id]
	delete(t.chunkIDs, id)
	for _, cid := range chunkIDs {
		delete(t.parentOf, cid)
	}
	t.mu.Unlock()

	for _, cid := range chunkIDs {
		t.index.Remove(cid)
		_ = t.vectors.Delete(ctx, cid)
	}
	return t.store.Delete(ctx, id)
}

// Get reconstructs the ContextItem for id from its persisted record.
func (t *Tier) Get(ctx context.Context, id string) (*types.ContextItem, bool, error) {
	record, ok, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, false, ctxerr.New("longterm.Get", ctxerr.KindCollaboratorFailure, err)
	}
	if !ok {
		return nil, false, nil
	}
	return recordToItem(record), true, nil
}

// Scan returns every record passing filter, reconstructed as ContextItems.
func (t *Tier) Scan(ctx context.Context, filter func(*types.ContextItem) bool) ([]*types.ContextItem, error) {
	records, err := t.store.Scan(ctx)
	if err != nil {
		return nil, ctxerr.New("longterm.Scan", ctxerr.KindCollaboratorFailure, err)
	}
	out := make([]*types.ContextItem, 0, len(records))
	for _, r := range records {
		item := recordToItem(r)
		if filter == nil || filter(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func recordToItem(r Record) *types.ContextItem {
	return &types.ContextItem{
		ID:             r.ID,
		Content:        r.Content,
		Kind:           r.Kind,
		Priority:       r.Priority,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
		LastAccessedAt: r.CreatedAt,
		TokenEstimate:  r.TokenEstimate,
		TierHint:       types.TierLongTerm,
	}
}

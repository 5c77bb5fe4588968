package changelog

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/cuemby/warren/internal/store/keys"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/cuemby/warren/internal/store/storeerr"
	"github.com/cuemby/warren/pkg/metrics"
)

// Stream selects which of a sync collection's two change streams (per
// spec.md §4.7, "container vs item streams") a query reports on.
type Stream uint8

const (
	StreamItems Stream = iota
	StreamContainers
)

// Set is the created/updated/destroyed/vanished document-id lists of one
// log entry for one stream.
type Set struct {
	Created   []keys.DocumentID
	Updated   []keys.DocumentID
	Destroyed []keys.DocumentID
	Vanished  []keys.DocumentID
}

func (s Set) empty() bool {
	return len(s.Created) == 0 && len(s.Updated) == 0 && len(s.Destroyed) == 0 && len(s.Vanished) == 0
}

// Entry is the value stored at Log(account, syncCollection, changeId): the
// item-stream and container-stream mutations produced by one commit point.
// A LogContainerProperty mutation (spec.md §4.5) is folded into
// Containers.Updated, since a property-only change is a kind of container
// update from the sync protocol's point of view.
type Entry struct {
	Items      Set
	Containers Set
}

func (e Entry) streamSet(stream Stream) Set {
	if stream == StreamContainers {
		return e.Containers
	}
	return e.Items
}

// Encode serializes e as [n_created u32][ids...][n_updated]...] per set,
// items then containers, each field length-prefixed — no reflection, same
// explicit-binary-codec approach as internal/store/archive.
func (e Entry) Encode() []byte {
	var buf []byte
	for _, s := range []Set{e.Items, e.Containers} {
		buf = appendIDList(buf, s.Created)
		buf = appendIDList(buf, s.Updated)
		buf = appendIDList(buf, s.Destroyed)
		buf = appendIDList(buf, s.Vanished)
	}
	return buf
}

// Decode parses bytes written by Encode.
func Decode(data []byte) (Entry, error) {
	var e Entry
	sets := make([]*Set, 0, 2)
	sets = append(sets, &e.Items, &e.Containers)
	for _, s := range sets {
		var err error
		if s.Created, data, err = takeIDList(data); err != nil {
			return Entry{}, err
		}
		if s.Updated, data, err = takeIDList(data); err != nil {
			return Entry{}, err
		}
		if s.Destroyed, data, err = takeIDList(data); err != nil {
			return Entry{}, err
		}
		if s.Vanished, data, err = takeIDList(data); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

func appendIDList(buf []byte, ids []keys.DocumentID) []byte {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(ids)))
	buf = append(buf, hdr...)
	for _, id := range ids {
		idb := make([]byte, 4)
		binary.BigEndian.PutUint32(idb, id)
		buf = append(buf, idb...)
	}
	return buf
}

func takeIDList(data []byte) ([]keys.DocumentID, []byte, error) {
	if len(data) < 4 {
		return nil, nil, storeerr.New(storeerr.KindCorruption, "changelog.takeIDList", "truncated list length")
	}
	n := binary.BigEndian.Uint32(data)
	data = data[4:]
	if uint64(len(data)) < uint64(n)*4 {
		return nil, nil, storeerr.New(storeerr.KindCorruption, "changelog.takeIDList", "truncated list body")
	}
	out := make([]keys.DocumentID, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(data[i*4:])
	}
	return out, data[n*4:], nil
}

// Append writes entry at the change id allocated for (account,
// syncCollection), as a single kv write. Callers that need this bundled
// with other mutations in the same atomic commit should use
// internal/store/batch instead; Append exists for callers (tests, the
// log_retain task) that write a log row standalone.
func Append(ctx context.Context, store kv.Store, account keys.AccountID, sc keys.SyncCollection, entry Entry) (uint64, error) {
	counterKey := keys.Counter(account, sc, keys.ChangeCounterName)
	changeID, err := store.CounterAdd(ctx, counterKey, 1)
	if err != nil {
		return 0, err
	}
	b := &kv.Batch{}
	b.Set(keys.Log(account, sc, uint64(changeID)), entry.Encode())
	if _, err := store.Write(ctx, b); err != nil {
		return 0, err
	}
	return uint64(changeID), nil
}

// latestChangeID returns the highest change id ever allocated for
// (account, syncCollection), 0 if none.
func latestChangeID(ctx context.Context, store kv.Store, account keys.AccountID, sc keys.SyncCollection) (uint64, error) {
	v, err := store.CounterGet(ctx, keys.Counter(account, sc, keys.ChangeCounterName))
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, nil
	}
	return uint64(v), nil
}

// item is one merged (category, docID) result tagged with the change id
// at which its final reported state was determined, used to sort in the
// stable order of spec.md §4.7 and to compute truncation boundaries.
type item struct {
	changeID uint64
	category int // 0=destroyed 1=updated 2=created 3=vanished
	doc      keys.DocumentID
}

const (
	catDestroyed = 0
	catUpdated   = 1
	catCreated   = 2
	catVanished  = 3
)

// Result is the created/updated/destroyed/vanished report of one Query call.
type Result struct {
	Created   []keys.DocumentID
	Updated   []keys.DocumentID
	Destroyed []keys.DocumentID
	Vanished  []keys.DocumentID
}

// Query resolves a sync request per spec.md §4.7: scans the log window
// implied by since, merges/dedups per-document state, truncates to
// maxChanges items, and returns the continuation token.
func Query(ctx context.Context, store kv.Store, account keys.AccountID, sc keys.SyncCollection, stream Stream, since Token, maxChanges int) (Result, Token, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncQueryDuration)

	if maxChanges <= 0 {
		maxChanges = 1
	}

	var windowFrom uint64
	var skip uint64
	switch since.Kind {
	case TokenInitial:
		windowFrom = 0
	case TokenExact:
		windowFrom = since.Exact
	case TokenIntermediate:
		windowFrom = since.FromID
		skip = since.ItemsSent
	default:
		return Result{}, Token{}, storeerr.New(storeerr.KindInvalid, "changelog.Query", "unknown token kind")
	}

	latest, err := latestChangeID(ctx, store, account, sc)
	if err != nil {
		return Result{}, Token{}, err
	}

	states := map[keys.DocumentID]item{}
	order := func(docID keys.DocumentID) keys.DocumentID { return docID }
	_ = order

	if latest > windowFrom {
		startKey := keys.Log(account, sc, windowFrom+1)
		endKey := keys.Log(account, sc, latest+1) // exclusive upper bound
		r := kv.Range{Start: startKey, End: endKey}
		scanErr := store.Iterate(ctx, r, true, true, func(k, v []byte) (bool, error) {
			changeID, ok := parseLogChangeID(k)
			if !ok {
				return true, nil
			}
			entry, derr := Decode(v)
			if derr != nil {
				return false, derr
			}
			applyEntry(states, entry.streamSet(stream), changeID)
			return true, nil
		})
		if scanErr != nil {
			metrics.SyncQueriesTotal.WithLabelValues("error").Inc()
			return Result{}, Token{}, scanErr
		}
	}

	items := make([]item, 0, len(states))
	for _, it := range states {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.changeID != b.changeID {
			return a.changeID < b.changeID
		}
		if a.category != b.category {
			return a.category < b.category
		}
		return a.doc < b.doc
	})

	if uint64(len(items)) <= skip {
		metrics.SyncQueriesTotal.WithLabelValues("exact").Inc()
		return Result{}, ExactToken(latest), nil
	}
	items = items[skip:]

	truncated := false
	if len(items) > maxChanges {
		items = items[:maxChanges]
		truncated = true
	}

	var res Result
	for _, it := range items {
		switch it.category {
		case catCreated:
			res.Created = append(res.Created, it.doc)
		case catUpdated:
			res.Updated = append(res.Updated, it.doc)
		case catDestroyed:
			res.Destroyed = append(res.Destroyed, it.doc)
		case catVanished:
			res.Vanished = append(res.Vanished, it.doc)
		}
	}

	if !truncated {
		metrics.SyncQueriesTotal.WithLabelValues("exact").Inc()
		return res, ExactToken(latest), nil
	}

	lastChangeID := items[len(items)-1].changeID
	metrics.SyncQueriesTotal.WithLabelValues("intermediate").Inc()
	return res, Token{
		Kind:      TokenIntermediate,
		FromID:    windowFrom,
		ToID:      lastChangeID,
		ItemsSent: skip + uint64(len(items)),
	}, nil
}

func applyEntry(states map[keys.DocumentID]item, s Set, changeID uint64) {
	for _, d := range s.Created {
		states[d] = item{changeID: changeID, category: catCreated, doc: d}
	}
	for _, d := range s.Updated {
		if cur, ok := states[d]; ok && cur.category == catCreated {
			// Still unobserved by any client: stays "created", but the
			// change id advances so later truncation accounts for this
			// entry too.
			states[d] = item{changeID: changeID, category: catCreated, doc: d}
			continue
		}
		states[d] = item{changeID: changeID, category: catUpdated, doc: d}
	}
	for _, d := range s.Destroyed {
		states[d] = item{changeID: changeID, category: catDestroyed, doc: d}
	}
	for _, d := range s.Vanished {
		if _, ok := states[d]; ok {
			continue
		}
		states[d] = item{changeID: changeID, category: catVanished, doc: d}
	}
}

func parseLogChangeID(key []byte) (uint64, bool) {
	// Family(1) + account(4) + syncCollection(1) + changeId(8).
	if len(key) != 14 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[6:14]), true
}

package chatclient

import "context"

// PageSize is the fixed history page size; a shorter page is terminal.
const PageSize = 20

// Pager drives backward pagination for one thread. The UI trigger (viewport
// intersection) lives elsewhere; this is only the pure contract: cursor in,
// page out, terminal flag. A single in-flight guard collapses concurrent
// triggers into one request.
type Pager struct {
	api      API
	ledger   *Ledger
	threadID string

	cursor     string
	inFlight   bool
	atStart    bool
	loadedOnce bool
}

// NewPager creates a pager positioned at the newest end of a thread.
func NewPager(api API, ledger *Ledger, threadID string) *Pager {
	return &Pager{api: api, ledger: ledger, threadID: threadID}
}

// AtStart reports whether the start of the conversation has been reached.
// Once true the UI replaces the loading trigger with a static marker and
// stops observing scroll intersections for this thread.
func (p *Pager) AtStart() bool { return p.atStart }

// Loaded reports whether at least one page fetch completed, so the UI can
// distinguish "empty conversation" from "not loaded yet".
func (p *Pager) Loaded() bool { return p.loadedOnce }

// LoadOlder fetches the next older page and merges it into the ledger.
// Returns how many messages were added. Calls while a fetch is in flight or
// after the terminal page are no-ops. Cancelling ctx (view navigation)
// aborts the fetch; the pager stays retryable.
func (p *Pager) LoadOlder(ctx context.Context) (int, error) {
	if p.inFlight || p.atStart {
		return 0, nil
	}
	p.inFlight = true
	defer func() { p.inFlight = false }()

	page, err := p.api.LoadMessages(ctx, p.threadID, p.cursor, PageSize)
	if err != nil {
		return 0, err
	}
	p.loadedOnce = true

	added := p.ledger.PrependPage(p.threadID, page.Messages)

	if !page.HasMore || len(page.Messages) < PageSize {
		p.atStart = true
	} else {
		p.cursor = page.NextCursor
	}
	return added, nil
}

package router

import (
	"math/rand"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// Router is the single correlation point between connected clients and
// the SIP engine: verb registrations for inbound fan-out, app-name
// registrations for dialog failover, and the transaction/API-request
// bindings that let a later callback find the client that started an
// exchange.
//
// All state lives behind one mutex. Per the source's concurrency
// model, indexes are never sharded: dialog promotion must observe
// whichever of the net-tx or app-tx maps holds the originating
// transaction atomically with every other index, and a single lock is
// the cheapest way to guarantee that.
type Router struct {
	mu sync.Mutex

	clients map[string]*clientSlot
	nextGen generation

	verbIndex  map[string][]clientRef
	verbOffset map[string]int

	serviceIndex map[string][]clientRef

	netTx         map[string]clientRef
	appTx         map[string]clientRef
	apiReq        map[string]clientRef
	dialogClient  map[string]clientRef
	dialogAppName map[string]string
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		clients:       make(map[string]*clientSlot),
		verbIndex:     make(map[string][]clientRef),
		verbOffset:    make(map[string]int),
		serviceIndex:  make(map[string][]clientRef),
		netTx:         make(map[string]clientRef),
		appTx:         make(map[string]clientRef),
		apiReq:        make(map[string]clientRef),
		dialogClient:  make(map[string]clientRef),
		dialogAppName: make(map[string]string),
	}
}

// Join admits a client into the Router. Its id must be unique among
// currently-joined clients; joining an id that is already present
// replaces the prior occupant's slot (the prior occupant's captured
// clientRefs will fail to resolve from then on).
func (r *Router) Join(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGen++
	r.clients[c.ID()] = &clientSlot{client: c, gen: r.nextGen}
}

// Leave removes a client and eagerly evicts every registration entry
// that refers to it. Transaction and API-request bindings are left in
// place; they resolve to absent lazily on next lookup.
func (r *Router) Leave(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, id)

	for verb, refs := range r.verbIndex {
		r.verbIndex[verb] = removeRefByID(refs, id)
	}
	for app, refs := range r.serviceIndex {
		r.serviceIndex[app] = removeRefByID(refs, id)
	}
}

func removeRefByID(refs []clientRef, id string) []clientRef {
	return slices.DeleteFunc(refs, func(ref clientRef) bool { return ref.id == id })
}

// RegisterVerb records that client id will accept inbound requests for
// verb (a SIP method name, matched case-insensitively). Returns false
// if verb is not one the Router recognizes, or if id has not been
// joined.
func (r *Router) RegisterVerb(id, verb string) bool {
	verb = strings.ToLower(verb)
	if !supportedVerbs[verb] {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.clients[id]
	if !ok {
		return false
	}
	ref := clientRef{id: id, gen: slot.gen}
	for _, existing := range r.verbIndex[verb] {
		if existing == ref {
			return true
		}
	}
	r.verbIndex[verb] = append(r.verbIndex[verb], ref)
	return true
}

// RegisterService records that client id is a member of the app-name
// group appName, making it eligible for dialog failover within that
// group. Returns false if id has not been joined.
func (r *Router) RegisterService(id, appName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.clients[id]
	if !ok {
		return false
	}
	ref := clientRef{id: id, gen: slot.gen}
	for _, existing := range r.serviceIndex[appName] {
		if existing == ref {
			return true
		}
	}
	r.serviceIndex[appName] = append(r.serviceIndex[appName], ref)
	return true
}

// SelectForInboundRequestOutsideDialog implements round-robin-with-skip
// over the clients registered for verb. It advances the stored offset
// on every call, evicts dead registrations it encounters while
// probing, and returns nil if no live client remains after a full
// rotation.
func (r *Router) SelectForInboundRequestOutsideDialog(verb string) Client {
	verb = strings.ToLower(verb)

	r.mu.Lock()
	defer r.mu.Unlock()

	refs := r.verbIndex[verb]
	n := len(refs)
	if n == 0 {
		return nil
	}

	o := r.verbOffset[verb]
	if o >= n {
		o = 0
	}

	idx := o
	for attempts := n; attempts > 0; attempts-- {
		if idx >= len(refs) {
			idx = 0
		}
		ref := refs[idx]
		if client := r.resolve(ref); client != nil {
			next := idx + 1
			if next >= len(refs) {
				next = 0
			}
			r.verbIndex[verb] = refs
			r.verbOffset[verb] = next
			return client
		}
		refs = slices.Delete(refs, idx, idx+1)
	}

	r.verbIndex[verb] = refs
	if len(refs) == 0 {
		r.verbOffset[verb] = 0
	} else {
		r.verbOffset[verb] = o % len(refs)
	}
	return nil
}

// SelectForDialog resolves the client owning dialogID. If the primary
// binding has died and the dialog was created by a client with a
// declared app-name, it fails over to a random live member of that
// app-name's group and rebinds the dialog to the replacement.
func (r *Router) SelectForDialog(dialogID string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	primary, ok := r.dialogClient[dialogID]
	if !ok {
		return nil
	}
	if client := r.resolve(primary); client != nil {
		return client
	}

	appName, ok := r.dialogAppName[dialogID]
	if !ok {
		return nil
	}
	refs := r.serviceIndex[appName]
	n := len(refs)
	if n == 0 {
		return nil
	}

	start := rand.Intn(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ref := refs[idx]
		if client := r.resolve(ref); client != nil {
			r.dialogClient[dialogID] = ref
			return client
		}
	}
	return nil
}

// FindForNetTx resolves the client that owns a network-originated
// transaction.
func (r *Router) FindForNetTx(txID string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.netTx[txID]
	if !ok {
		return nil
	}
	return r.resolve(ref)
}

// FindForAppTx resolves the client that owns a client-originated
// transaction.
func (r *Router) FindForAppTx(txID string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.appTx[txID]
	if !ok {
		return nil
	}
	return r.resolve(ref)
}

// FindForApiReq resolves the client that owns a pending API request.
func (r *Router) FindForApiReq(msgID string) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.apiReq[msgID]
	if !ok {
		return nil
	}
	return r.resolve(ref)
}

// AddNetTx binds a network-originated transaction id to client id.
// Returns false if id has not been joined.
func (r *Router) AddNetTx(txID, id string) bool { return r.addBinding(r.netTx, txID, id) }

// RemoveNetTx removes a network-originated transaction binding.
func (r *Router) RemoveNetTx(txID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.netTx, txID)
}

// AddAppTx binds a client-originated transaction id to client id.
// Returns false if id has not been joined.
func (r *Router) AddAppTx(txID, id string) bool { return r.addBinding(r.appTx, txID, id) }

// RemoveAppTx removes a client-originated transaction binding.
func (r *Router) RemoveAppTx(txID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.appTx, txID)
}

// AddApiReq binds a client-chosen message id to client id.
// Returns false if id has not been joined.
func (r *Router) AddApiReq(msgID, id string) bool { return r.addBinding(r.apiReq, msgID, id) }

// RemoveApiReq removes an API request binding.
func (r *Router) RemoveApiReq(msgID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.apiReq, msgID)
}

func (r *Router) addBinding(index map[string]clientRef, key, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.clients[id]
	if !ok {
		return false
	}
	index[key] = clientRef{id: id, gen: slot.gen}
	return true
}

// BindDialogToTransaction promotes a transaction to a dialog. It looks
// up txID in the net-tx index first (the UAS case), then checks
// whether dialogID is already bound (a reliable provisional response
// already elevated it), then falls back to the app-tx index (the UAC
// case). If none of the three has a record of the transaction, it
// returns ErrConsistency and leaves every index unchanged.
func (r *Router) BindDialogToTransaction(txID, dialogID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched clientRef
	if ref, ok := r.netTx[txID]; ok {
		matched = ref
	} else if existing, ok := r.dialogClient[dialogID]; ok {
		matched = existing
	} else if ref, ok := r.appTx[txID]; ok {
		matched = ref
	} else {
		return ErrConsistency
	}

	r.dialogClient[dialogID] = matched
	if slot, ok := r.clients[matched.id]; ok {
		if appName, has := slot.client.AppName(); has {
			r.dialogAppName[dialogID] = appName
		}
	}
	return nil
}

// RemoveDialog drops a dialog's client and app-name bindings.
func (r *Router) RemoveDialog(dialogID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dialogClient, dialogID)
	delete(r.dialogAppName, dialogID)
}

// AllClients returns every currently live client, in no particular
// order. Used for best-effort broadcasts (e.g. call detail records)
// that don't correlate to any single binding.
func (r *Router) AllClients() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Client, 0, len(r.clients))
	for _, slot := range r.clients {
		if slot.client.Alive() {
			out = append(out, slot.client)
		}
	}
	return out
}

// Stats reports index sizes for diagnostics.
func (r *Router) Stats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	verbCounts := make(map[string]int, len(r.verbIndex))
	for verb, refs := range r.verbIndex {
		verbCounts[verb] = len(refs)
	}

	return map[string]interface{}{
		"clients":        len(r.clients),
		"verbRegistered": verbCounts,
		"services":       len(r.serviceIndex),
		"netTx":          len(r.netTx),
		"appTx":          len(r.appTx),
		"apiReq":         len(r.apiReq),
		"dialogs":        len(r.dialogClient),
	}
}

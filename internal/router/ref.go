package router

// generation distinguishes successive occupants of the same client id
// slot, so a stale reference captured before a reconnect under the same
// id cannot be mistaken for the new occupant.
type generation uint64

// clientRef is a non-owning handle into the Router's client table: an
// id plus the generation it was captured at. Resolving a clientRef
// after its slot has been reassigned (or emptied) yields no client.
type clientRef struct {
	id  string
	gen generation
}

// clientSlot is the live occupant of a client id.
type clientSlot struct {
	client Client
	gen    generation
}

// resolve looks up the current occupant of ref's id and returns it only
// if the occupant's generation still matches and it reports itself
// alive. Must be called with r.mu held.
func (r *Router) resolve(ref clientRef) Client {
	slot, ok := r.clients[ref.id]
	if !ok || slot.gen != ref.gen {
		return nil
	}
	if !slot.client.Alive() {
		return nil
	}
	return slot.client
}

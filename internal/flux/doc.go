// Package flux implements the fluxr action/store dependency engine.
//
// The engine broadcasts actions to independently declared stores. Each store
// owns its state and replaces it only from its own reducers. A store may ask
// to run after other stores have reacted to the same action instance
// (wait-for), which turns the unordered broadcast into a join keyed by action
// identity.
//
// ARCHITECTURE:
//
// Engine Context:
// All buses, the store registry, the logical clock and the deferred task
// queue live on an explicit *Engine. Nothing is package-global, so tests
// construct one engine each and Close it afterwards.
//
// Dispatch Flow:
//  1. Channel.Invoke builds an Action (or drives the channel's pipeline)
//  2. Engine.Dispatch publishes an Envelope (action + tags) on the action bus
//  3. Matching stores run their reducer and publish a StoreChange
//  4. Joined subscriptions fire once every wait-for store has changed
//  5. When the outermost dispatch of the action returns, join state settles
//
// Dispatch is synchronous: publishing does not return until every
// subscriber's reaction chain has completed. The deferred queue is the only
// goroutine-safe entry point and holds the two suspension points of the
// model: pipeline continuations and history replay.
//
// Tags:
// INTERNAL and REPLAY_INACTIVE never live on the Action. They ride on the
// Envelope and on every StoreChange derived from it, so an action instance
// can be redispatched with different tags without mutating it.
package flux

// Package instance composes the privileged and tenant stores.
//
// Each Instance owns its own engine session, persistence coordinator,
// query facade, and domain store. The two instances share no engine and
// no storage key, so no statement can reach across them. The Registry
// opens each instance on first use and keeps it until process exit.
//
// Import deserializes into a separate engine, migrates it, and only then
// swaps it in, so a rejected image leaves the live data in place.
package instance

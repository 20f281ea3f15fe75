// Package factory instantiates pluggable backends (event stores, idempotency
// caches) from configuration. A backend is selected by a type string and
// configured from a map of raw settings that factories decode into typed
// structs.
//
//	reg := factory.NewRegistry[store.EventStore]()
//	reg.Register("sqlite", func(conf map[string]any) (store.EventStore, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return sqlite.Open(c.Path)
//	})
package factory

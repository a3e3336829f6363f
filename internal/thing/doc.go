// Package thing models the meter as an observable Web Thing.
//
// A Thing is created once from the first normalized reading: each register
// becomes a read-only Property named after its OBIS code, and the property
// set never changes afterwards. The sync loop then writes each later reading
// with Apply, which commits all values under one exclusive lock before any
// observer is notified.
//
//	th, err := thing.New(desc, first)
//	unsubscribe := th.Subscribe(func(name string, v obis.Value) { ... })
//	defer unsubscribe()
//	_, err = th.Apply(next)
//
// Readers that need several properties from the same reading use Read:
//
//	th.Read(func(s thing.Snapshot) {
//	    energy, _ := s.Value("1.0.1.8.0.255")
//	    clock, _ := s.Value("0.0.1.0.0.255")
//	})
package thing

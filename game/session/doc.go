// Package session holds the registry of live matches and their lifecycle.
//
// A Session moves through three phases and never back:
//   - creation: participants join and mark themselves ready
//   - ongoing: the roster is frozen and a board is in play
//   - over: the result and final board are retained
//
// The phase is a sum type (*Creation, *Ongoing, *Over) matched with type
// switches. Every read or write of session state goes through Session.Do,
// which holds the session mutex for the whole callback so a protocol step
// (validate, mutate, broadcast) is atomic with respect to other steps on
// the same session.
//
// Usage:
//
//	manager := session.NewManager()
//	s, err := manager.Create("", engine.ClassicVariant())
//
//	err = s.Do(func(tx *session.Tx) error {
//		if err := tx.Join("alice"); err != nil {
//			return err
//		}
//		if _, full := tx.SetReady("alice"); full {
//			_, err := tx.Start()
//			return err
//		}
//		return nil
//	})
package session

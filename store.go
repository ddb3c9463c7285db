package wiihost

// L2CAPRecord tracks one in-progress or established L2CAP channel.
type L2CAPRecord struct {
	Handle    uint16
	LocalCID  uint16
	PSM       uint16
	RemoteCID uint16
	MTU       uint16

	LocalConfigured  bool
	RemoteConfigured bool

	// established latches true the first time both Configured flags become
	// true, so the ESTABLISHED event fires exactly once per record.
	established bool
}

// ConnectionStore is an unordered collection of L2CAPRecords keyed by
// (handle, local CID) or (handle, PSM). Lookups are linear scans, which is
// fine at the expected cardinality of a couple of channels per board.
// Callers are responsible for uniqueness; the store never deduplicates.
type ConnectionStore struct {
	records []*L2CAPRecord
}

// NewConnectionStore returns an empty store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{}
}

// FindByLocal returns the record for (handle, localCID), or nil.
func (s *ConnectionStore) FindByLocal(handle, localCID uint16) *L2CAPRecord {
	for _, r := range s.records {
		if r.Handle == handle && r.LocalCID == localCID {
			return r
		}
	}
	return nil
}

// FindByPSM returns the record for (handle, psm), or nil.
func (s *ConnectionStore) FindByPSM(handle, psm uint16) *L2CAPRecord {
	for _, r := range s.records {
		if r.Handle == handle && r.PSM == psm {
			return r
		}
	}
	return nil
}

// FindByRemote returns the record for (handle, remoteCID), or nil. The
// engine does not use it: inbound DISCONNECT REQUEST/RESPONSE are matched
// by our local CID through FindByLocal.
func (s *ConnectionStore) FindByRemote(handle, remoteCID uint16) *L2CAPRecord {
	for _, r := range s.records {
		if r.Handle == handle && r.RemoteCID == remoteCID {
			return r
		}
	}
	return nil
}

// Emplace adds a new record to the store.
func (s *ConnectionStore) Emplace(r *L2CAPRecord) {
	s.records = append(s.records, r)
}

// Remove deletes r from the store. A no-op if r is not present.
func (s *ConnectionStore) Remove(r *L2CAPRecord) {
	for i, c := range s.records {
		if c == r {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

// RecordsForHandle returns every record belonging to handle, used when a
// link is torn down and all its channels must be cleaned up.
func (s *ConnectionStore) RecordsForHandle(handle uint16) []*L2CAPRecord {
	var out []*L2CAPRecord
	for _, r := range s.records {
		if r.Handle == handle {
			out = append(out, r)
		}
	}
	return out
}

// MaybeEstablished reports whether both sides just became configured for
// the first time, latching established so it only ever reports true once.
func (r *L2CAPRecord) MaybeEstablished() bool {
	if r.established || !r.LocalConfigured || !r.RemoteConfigured {
		return false
	}
	r.established = true
	return true
}

package normalizer

import (
	"errors"
	"fmt"
)

// ErrEmptyFeed is returned when the feed holds nothing usable. It is the only
// normalization failure that aborts a refresh.
var ErrEmptyFeed = errors.New("transaction feed is empty or unreadable")

// UnresolvedAssetError reports an asset whose type and symbol are unknown.
type UnresolvedAssetError struct {
	AssetID string
	Name    string
}

func (e *UnresolvedAssetError) Error() string {
	return fmt.Sprintf("unresolved asset %s (%s): no type/symbol metadata", e.AssetID, e.Name)
}

// MalformedTransactionError reports a dropped feed row.
type MalformedTransactionError struct {
	Source string
	Row    int
	Reason string
}

func (e *MalformedTransactionError) Error() string {
	return fmt.Sprintf("%s row %d dropped: %s", e.Source, e.Row, e.Reason)
}

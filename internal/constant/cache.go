package constant

import (
	"fmt"
	"strings"
)

const (
	DefaultCachePrefix = "mp"

	cacheAssetKeyFormat     = "%s:asset:%s"
	cacheCategoryIdxFormat  = "%s:idx:category:%s"
	cacheSymbolIdxFormat    = "%s:idx:symbol:%s"
	cacheEventChannelFormat = "%s:events"
)

func AssetKey(prefix, id string) string {
	return fmt.Sprintf(cacheAssetKeyFormat, prefix, id)
}

func CategoryIndexKey(prefix, category string) string {
	return fmt.Sprintf(cacheCategoryIdxFormat, prefix, category)
}

func SymbolIndexKey(prefix, symbol string) string {
	return fmt.Sprintf(cacheSymbolIdxFormat, prefix, strings.ToUpper(strings.TrimSpace(symbol)))
}

func EventChannel(prefix string) string {
	return fmt.Sprintf(cacheEventChannelFormat, prefix)
}

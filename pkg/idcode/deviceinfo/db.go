package deviceinfo

import (
	"sort"

	"github.com/OpenTraceLab/jtagstream/pkg/idcode"
)

// key is used for device database lookups. Revision is ignored.
type key struct {
	ManufacturerCode uint16
	PartNumber       uint16
}

// db is the in-memory device database
var db = make(map[key]DeviceInfo)

// register adds a device entry to the database
func register(k key, info DeviceInfo) {
	info.Known = true
	db[k] = info
}

// Lookup returns device information for a given IDCODE
// Falls back to generic info if device is not in database
func Lookup(rawID uint32) DeviceInfo {
	id := idcode.ParseIDCode(rawID)
	m, _ := idcode.LookupManufacturer(id.ManufacturerCode)

	k := key{ManufacturerCode: id.ManufacturerCode, PartNumber: id.PartNumber}
	if info, ok := db[k]; ok {
		info.IDCode = id
		info.Manufacturer = m
		return info
	}

	return DeviceInfo{
		IDCode:       id,
		Manufacturer: m,
		Name:         "Unknown device",
		Description:  "No entry in device database",
	}
}

// Devices returns every registered entry for the given family name, ordered
// by part number.
func Devices(family string) []DeviceInfo {
	var out []DeviceInfo
	for k, info := range db {
		if info.Family != family {
			continue
		}
		info.IDCode = idcode.ParseIDCode(uint32(k.PartNumber)<<12 | uint32(k.ManufacturerCode)<<1 | 1)
		info.Manufacturer, _ = idcode.LookupManufacturer(k.ManufacturerCode)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IDCode.PartNumber < out[j].IDCode.PartNumber
	})
	return out
}

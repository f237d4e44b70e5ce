package command

import (
	"math"
	"sort"
	"strings"

	"github.com/cedis/server/internal/resp"
	"github.com/cedis/server/internal/store"
)

// Geo commands ride the sorted-set container (SPEC_FULL.md §3), grounded
// on original_source/src/command/geo.rs and internal/store/geo.go's
// interleaved-score encoding.
func (d *Dispatcher) registerGeoCommands() {
	d.add("GEOADD", 5, true, cmdGeoAdd)
	d.add("GEOPOS", 2, false, cmdGeoPos)
	d.add("GEODIST", 4, false, cmdGeoDist)
	d.add("GEOHASH", 2, false, cmdGeoHash)
	d.add("GEOSEARCH", 2, false, cmdGeoSearch)
	d.add("GEORADIUS", 6, false, cmdGeoRadius)
}

func geoUnitToMeters(unit string) (float64, bool) {
	switch strings.ToLower(unit) {
	case "m":
		return 1, true
	case "km":
		return 1000, true
	case "mi":
		return 1609.34, true
	case "ft":
		return 0.3048, true
	default:
		return 0, false
	}
}

func cmdGeoAdd(ctx *Context, args [][]byte) resp.Value {
	rest := args[2:]
	if len(rest)%3 != 0 || len(rest) == 0 {
		return syntaxError()
	}
	s := ctx.Disp.Store
	s.Lock()
	defer s.Unlock()
	z, errv := getRZSet(ctx, string(args[1]), true)
	if errv.Kind == resp.KindError {
		return errv
	}
	added := int64(0)
	for i := 0; i+2 < len(rest); i += 3 {
		lon, err1 := parseFloat(rest[i])
		lat, err2 := parseFloat(rest[i+1])
		if err1 != nil || err2 != nil {
			return notFloat()
		}
		member := string(rest[i+2])
		score := store.GeoEncode(lon, lat)
		if z.Add(member, score) {
			added++
		}
	}
	ctx.Touch(string(args[1]))
	return resp.Integer(added)
}

func cmdGeoPos(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	out := make([]resp.Value, len(args)-2)
	for i, m := range args[2:] {
		if z == nil {
			out[i] = resp.NullArray()
			continue
		}
		sc, ok := z.Score(string(m))
		if !ok {
			out[i] = resp.NullArray()
			continue
		}
		lon, lat := store.GeoDecode(uint64(sc))
		out[i] = resp.Array([]resp.Value{
			resp.BulkString(formatFloat(lon)),
			resp.BulkString(formatFloat(lat)),
		})
	}
	return resp.Array(out)
}

func cmdGeoDist(ctx *Context, args [][]byte) resp.Value {
	unit := "m"
	if len(args) >= 5 {
		unit = string(args[4])
	}
	div, ok := geoUnitToMeters(unit)
	if !ok {
		return resp.Error("ERR unsupported unit provided. please use m, km, ft, mi")
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.NullBulk()
	}
	sc1, ok1 := z.Score(string(args[2]))
	sc2, ok2 := z.Score(string(args[3]))
	if !ok1 || !ok2 {
		return resp.NullBulk()
	}
	lon1, lat1 := store.GeoDecode(uint64(sc1))
	lon2, lat2 := store.GeoDecode(uint64(sc2))
	dist := store.GeoDistance(lon1, lat1, lon2, lat2) / div
	return resp.BulkString(formatFloatPrecision(dist, 4))
}

const geoHashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// cmdGeoHash produces a standard-geohash-alphabet string derived from the
// stored interleaved score; it is a display convenience and need not be
// bit-identical to real Redis's 11-character geohash.
func cmdGeoHash(ctx *Context, args [][]byte) resp.Value {
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	out := make([]resp.Value, len(args)-2)
	for i, m := range args[2:] {
		if z == nil {
			out[i] = resp.NullBulk()
			continue
		}
		sc, ok := z.Score(string(m))
		if !ok {
			out[i] = resp.NullBulk()
			continue
		}
		bits := uint64(sc)
		var b strings.Builder
		for shift := 50; shift >= 0; shift -= 5 {
			idx := (bits >> uint(shift)) & 0x1f
			b.WriteByte(geoHashAlphabet[idx%uint64(len(geoHashAlphabet))])
		}
		out[i] = resp.BulkString(b.String())
	}
	return resp.Array(out)
}

type geoHit struct {
	member string
	distM  float64
	lon    float64
	lat    float64
}

func geoSearchWithin(z *store.RZSet, centerLon, centerLat, radiusM float64) []geoHit {
	var hits []geoHit
	for _, m := range z.All() {
		lon, lat := store.GeoDecode(uint64(m.Score))
		d := store.GeoDistance(centerLon, centerLat, lon, lat)
		if d <= radiusM {
			hits = append(hits, geoHit{member: m.Member, distM: d, lon: lon, lat: lat})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].distM < hits[j].distM })
	return hits
}

func geoReply(hits []geoHit, withCoord, withDist bool, div float64, count int) resp.Value {
	if count > 0 && count < len(hits) {
		hits = hits[:count]
	}
	out := make([]resp.Value, len(hits))
	for i, h := range hits {
		if !withCoord && !withDist {
			out[i] = resp.BulkString(h.member)
			continue
		}
		fields := []resp.Value{resp.BulkString(h.member)}
		if withDist {
			fields = append(fields, resp.BulkString(formatFloatPrecision(h.distM/div, 4)))
		}
		if withCoord {
			fields = append(fields, resp.Array([]resp.Value{
				resp.BulkString(formatFloat(h.lon)), resp.BulkString(formatFloat(h.lat)),
			}))
		}
		out[i] = resp.Array(fields)
	}
	return resp.Array(out)
}

// cmdGeoSearch implements the FROMLONLAT/FROMMEMBER + BYRADIUS subset of
// GEOSEARCH; BYBOX is not offered (spec's Non-goals exclude box-shaped
// queries from the geo surface).
func cmdGeoSearch(ctx *Context, args [][]byte) resp.Value {
	var centerLon, centerLat float64
	var haveCenter bool
	var radiusM float64
	var unit = "m"
	withCoord, withDist := false, false
	count := -1

	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}

	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "FROMLONLAT":
			if i+2 >= len(args) {
				return syntaxError()
			}
			lon, e1 := parseFloat(args[i+1])
			lat, e2 := parseFloat(args[i+2])
			if e1 != nil || e2 != nil {
				return notFloat()
			}
			centerLon, centerLat, haveCenter = lon, lat, true
			i += 2
		case "FROMMEMBER":
			if i+1 >= len(args) {
				return syntaxError()
			}
			if z == nil {
				return resp.Array(nil)
			}
			sc, ok := z.Score(string(args[i+1]))
			if !ok {
				return resp.Error("ERR could not decode requested zset member")
			}
			centerLon, centerLat = store.GeoDecode(uint64(sc))
			haveCenter = true
			i++
		case "BYRADIUS":
			if i+2 >= len(args) {
				return syntaxError()
			}
			r, err := parseFloat(args[i+1])
			if err != nil {
				return notFloat()
			}
			div, ok := geoUnitToMeters(string(args[i+2]))
			if !ok {
				return resp.Error("ERR unsupported unit provided. please use m, km, ft, mi")
			}
			radiusM = r * div
			unit = string(args[i+2])
			i += 2
		case "WITHCOORD":
			withCoord = true
		case "WITHDIST":
			withDist = true
		case "COUNT":
			if i+1 >= len(args) {
				return syntaxError()
			}
			n, err := parseInt(args[i+1])
			if err != nil {
				return notInteger()
			}
			count = int(n)
			i++
		case "ASC", "DESC":
		default:
			return syntaxError()
		}
	}
	if !haveCenter {
		return resp.Error("ERR exactly one of FROMMEMBER or FROMLONLAT can be specified for GEOSEARCH")
	}
	if z == nil {
		return resp.Array(nil)
	}
	div, _ := geoUnitToMeters(unit)
	hits := geoSearchWithin(z, centerLon, centerLat, radiusM)
	return geoReply(hits, withCoord, withDist, div, count)
}

// cmdGeoRadius implements the read-only subset of the legacy
// GEORADIUS key lon lat radius unit [WITHCOORD] [WITHDIST] [COUNT n] form;
// the STORE/STOREDIST destination-writing variant is not offered.
func cmdGeoRadius(ctx *Context, args [][]byte) resp.Value {
	lon, err1 := parseFloat(args[2])
	lat, err2 := parseFloat(args[3])
	if err1 != nil || err2 != nil {
		return notFloat()
	}
	radius, err3 := parseFloat(args[4])
	if err3 != nil {
		return notFloat()
	}
	div, ok := geoUnitToMeters(string(args[5]))
	if !ok {
		return resp.Error("ERR unsupported unit provided. please use m, km, ft, mi")
	}
	withCoord, withDist := false, false
	count := -1
	for i := 6; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "WITHCOORD":
			withCoord = true
		case "WITHDIST":
			withDist = true
		case "COUNT":
			if i+1 >= len(args) {
				return syntaxError()
			}
			n, err := parseInt(args[i+1])
			if err != nil {
				return notInteger()
			}
			count = int(n)
			i++
		case "ASC", "DESC":
		default:
			return syntaxError()
		}
	}
	s := ctx.Disp.Store
	s.RLock()
	defer s.RUnlock()
	z, errv := getRZSet(ctx, string(args[1]), false)
	if errv.Kind == resp.KindError {
		return errv
	}
	if z == nil {
		return resp.Array(nil)
	}
	hits := geoSearchWithin(z, lon, lat, radius*div)
	return geoReply(hits, withCoord, withDist, div, count)
}

// formatFloatPrecision renders a float rounded to the given number of
// decimal digits, matching how distances are surfaced by GEODIST/GEOSEARCH.
func formatFloatPrecision(v float64, digits int) string {
	mul := math.Pow(10, float64(digits))
	rounded := math.Round(v*mul) / mul
	return formatFloat(rounded)
}

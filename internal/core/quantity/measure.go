package quantity

import (
	"regexp"
	"strconv"
	"strings"
)

// Measure 份量中的公克或毫升數
type Measure struct {
	Value float64
	Kind  string
}

var measurePattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(ml|millilit(?:re|er)s?|cl|l|g|gr|grams?)\b`)

// UnitKind 將單位歸為 "g" 或 "ml"，其他回傳空字串
func UnitKind(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch {
	case u == "g" || u == "gr" || strings.HasPrefix(u, "gram"):
		return "g"
	case u == "ml" || u == "cl" || u == "l" || strings.HasPrefix(u, "millilit"):
		return "ml"
	}
	return ""
}

// ParseMeasure 從標籤找出公克或毫升數，cl 與 l 換算為毫升
//
// 同時出現公克與毫升時無法判斷，ok 為 false；同類取第一個。
func ParseMeasure(label string) (Measure, bool) {
	var g, ml *float64
	for _, m := range measurePattern.FindAllStringSubmatch(label, -1) {
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil || v <= 0 {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "cl":
			v *= 10
		case "l":
			v *= 1000
		}
		switch UnitKind(m[2]) {
		case "g":
			if g == nil {
				g = &v
			}
		case "ml":
			if ml == nil {
				ml = &v
			}
		}
	}

	switch {
	case g != nil && ml != nil:
		return Measure{}, false
	case g != nil:
		return Measure{Value: *g, Kind: "g"}, true
	case ml != nil:
		return Measure{Value: *ml, Kind: "ml"}, true
	}
	return Measure{}, false
}

package quantity

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultServingLabel 無法辨識份量時的預設標籤
const DefaultServingLabel = "1 serving"

// compositePattern 比對 "<數量> x <份量>"，也接受 "×"；"x" 後必須接空白以免吃掉 "xl" 之類的字
var compositePattern = regexp.MustCompile(`^\s*([-+]?[0-9]*[.,]?[0-9]+)\s*(?:×\s*|[xX]\s+)(\S.*?)\s*$`)

// Composite 份量標籤與倍數
type Composite struct {
	Amount           float64 `json:"amount"`
	ServingSizeLabel string  `json:"servingSizeLabel"`
}

// ParseComposite 解析 "N x serving" 表示法
func ParseComposite(text string) Composite {
	text = strings.TrimSpace(text)
	m := compositePattern.FindStringSubmatch(text)
	if m == nil {
		if text == "" {
			text = DefaultServingLabel
		}
		return Composite{Amount: 1, ServingSizeLabel: text}
	}

	amount, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || !(amount > 0) || math.IsInf(amount, 0) {
		amount = 1
	}
	return Composite{Amount: amount, ServingSizeLabel: m[2]}
}

// FormatComposite 倍數為 1 時只輸出標籤，否則輸出 "<amount> x <label>"
//
// 標籤前後空白會被去除，與 ParseComposite 的結果一致；空標籤輸出為 "1 serving"。
func FormatComposite(servingSizeLabel string, amount float64) string {
	label := strings.TrimSpace(servingSizeLabel)
	if label == "" {
		label = DefaultServingLabel
	}
	if amount == 1 {
		return label
	}
	return strconv.FormatFloat(amount, 'f', -1, 64) + " x " + label
}

// String 實現 fmt.Stringer
func (c Composite) String() string {
	return FormatComposite(c.ServingSizeLabel, c.Amount)
}

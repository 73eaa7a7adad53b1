// Package tailwind maps computed CSS declarations to utility classes.
// The mapping is heuristic: common values land on the closest standard
// utility, everything else falls back to an arbitrary-value class.
package tailwind

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var justifyClasses = map[string]string{
	"center":        "justify-center",
	"flex-start":    "justify-start",
	"flex-end":      "justify-end",
	"space-between": "justify-between",
	"space-around":  "justify-around",
}

var alignClasses = map[string]string{
	"center":     "items-center",
	"flex-start": "items-start",
	"flex-end":   "items-end",
	"baseline":   "items-baseline",
	"stretch":    "items-stretch",
}

var textAlignClasses = map[string]string{
	"left":    "text-left",
	"center":  "text-center",
	"right":   "text-right",
	"justify": "text-justify",
}

var weightClasses = map[int]string{
	100: "font-thin",
	200: "font-extralight",
	300: "font-light",
	400: "font-normal",
	500: "font-medium",
	600: "font-semibold",
	700: "font-bold",
	800: "font-extrabold",
	900: "font-black",
}

// Convert turns a map of CSS property names to computed values into a
// space-separated utility class string. Unknown or empty properties are
// ignored.
func Convert(styles map[string]string) string {
	var tw []string
	push := func(class string) {
		if class != "" {
			tw = append(tw, class)
		}
	}
	get := func(prop string) string { return styles[prop] }

	// layout
	if get("display") == "flex" {
		push("flex")
	}
	if get("display") == "grid" {
		push("grid")
	}
	push(justifyClasses[get("justify-content")])
	push(alignClasses[get("align-items")])
	if get("flex-direction") == "column" {
		push("flex-col")
	}
	if get("flex-wrap") == "wrap" {
		push("flex-wrap")
	}

	// spacing, one axis at a time
	for _, d := range []string{"top", "right", "bottom", "left"} {
		if p := get("padding-" + d); p != "" {
			push(spaceClass("p"+d[:1], p))
		}
		if m := get("margin-" + d); m != "" {
			push(spaceClass("m"+d[:1], m))
		}
	}
	if gap := get("gap"); gap != "" {
		push(spaceClass("gap", gap))
	}

	// sizes always fall back to arbitrary values
	for _, s := range []struct{ prop, prefix string }{
		{"width", "w"},
		{"height", "h"},
		{"min-width", "min-w"},
		{"max-width", "max-w"},
		{"min-height", "min-h"},
		{"max-height", "max-h"},
		{"aspect-ratio", "aspect"},
	} {
		if v := get(s.prop); v != "" {
			push(fmt.Sprintf("%s-[%s]", s.prefix, v))
		}
	}

	// typography
	if v := get("font-size"); v != "" {
		push(sizeClass(v))
	}
	if v := get("font-weight"); v != "" {
		if w, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			push(weightClasses[w])
		}
	}
	if v := get("line-height"); v != "" {
		if n, ok := parseLeadingFloat(v); ok {
			switch {
			case n >= 1.75:
				push("leading-8")
			case n >= 1.5:
				push("leading-7")
			case n >= 1.25:
				push("leading-6")
			default:
				push(fmt.Sprintf("leading-[%s]", v))
			}
		}
	}
	if v := get("letter-spacing"); v != "" {
		if n, ok := parseLeadingFloat(v); ok {
			if n > 0 {
				push("tracking-wide")
			} else {
				push("tracking-tight")
			}
		} else {
			push(fmt.Sprintf("tracking-[%s]", v))
		}
	}
	push(textAlignClasses[get("text-align")])

	// colors and effects
	if v := get("color"); v != "" {
		push(colorClass("text", v))
	}
	if v := get("background-color"); v != "" {
		push(colorClass("bg", v))
	}
	if v := get("opacity"); v != "" && v != "1" {
		push(fmt.Sprintf("opacity-[%s]", v))
	}

	// border radius and shadow
	if v := get("border-radius"); v != "" {
		push(radiusClass(v))
	}
	if v := get("box-shadow"); v != "" && v != "none" {
		push("shadow")
	}

	return strings.Join(tw, " ")
}

// spaceClass snaps a pixel value onto the 4px spacing scale, or keeps
// the raw value as an arbitrary class.
func spaceClass(prefix, px string) string {
	n, ok := parseLeadingFloat(px)
	if !ok {
		return fmt.Sprintf("%s-[%s]", prefix, px)
	}
	step := int(math.Round(n / 4))
	if step < 0 {
		return fmt.Sprintf("%s-[%s]", prefix, px)
	}
	return fmt.Sprintf("%s-%d", prefix, step)
}

func sizeClass(px string) string {
	f, ok := parseLeadingFloat(px)
	if !ok {
		return ""
	}
	n := int(math.Round(f))
	switch {
	case n >= 24:
		return "text-2xl"
	case n >= 20:
		return "text-xl"
	case n >= 18:
		return "text-lg"
	case n >= 16:
		return "text-base"
	case n >= 14:
		return "text-sm"
	default:
		return fmt.Sprintf("text-[%dpx]", n)
	}
}

var namedColors = map[string]string{
	"rgb(59, 130, 246)":  "blue-500",
	"rgb(239, 68, 68)":   "red-500",
	"rgb(34, 197, 94)":   "green-500",
	"rgb(0, 0, 0)":       "black",
	"rgb(255, 255, 255)": "white",
}

func colorClass(kind, rgb string) string {
	if name, ok := namedColors[rgb]; ok {
		return kind + "-" + name
	}
	if hex := rgbToHex(rgb); hex != "" {
		return fmt.Sprintf("%s-[%s]", kind, hex)
	}
	return ""
}

var rgbPattern = regexp.MustCompile(`(?i)rgba?\((\d+),\s*(\d+),\s*(\d+)`)

func rgbToHex(rgb string) string {
	m := rgbPattern.FindStringSubmatch(rgb)
	if m == nil {
		return ""
	}
	r, _ := strconv.Atoi(m[1])
	g, _ := strconv.Atoi(m[2])
	b, _ := strconv.Atoi(m[3])
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func radiusClass(raw string) string {
	n, ok := parseLeadingFloat(raw)
	if !ok {
		return fmt.Sprintf("rounded-[%s]", raw)
	}
	r := int(math.Round(n / 4))
	switch {
	case r >= 6:
		return "rounded-3xl"
	case r >= 4:
		return "rounded-2xl"
	case r >= 3:
		return "rounded-xl"
	case r >= 2:
		return "rounded-lg"
	case r > 0:
		return "rounded"
	default:
		return fmt.Sprintf("rounded-[%s]", raw)
	}
}

// parseLeadingFloat reads a leading decimal number the way CSS values
// carry them, ignoring a trailing unit like "px" or "em".
func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit := false
	for i, r := range s {
		if r == '+' || r == '-' {
			if i != 0 {
				break
			}
		} else if r == '.' {
			if strings.ContainsRune(s[:i], '.') {
				break
			}
		} else if r < '0' || r > '9' {
			break
		} else {
			seenDigit = true
		}
		end = i + 1
	}
	if !seenDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

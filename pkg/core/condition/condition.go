// Package condition 提供任务条件表达式的求值能力
// 表达式是对前置任务输出的点路径布尔表达式，例如：
//
//	initial_decision.result.confidence >= 0.8
//	review.verdict == "approved"
//	gate.enabled
//
// 只支持路径查找和比较运算，不做任意代码求值
package condition

import (
	"fmt"
	"strconv"
	"strings"
)


// Evaluate 对条件表达式求值（对外导出）
// expr: 条件表达式，为空视为恒真
// results: 已完成任务的输出，任务ID -> 输出map
// 返回求值结果；仅在表达式本身格式非法时返回错误
func Evaluate(expr string, results map[string]map[string]interface{}) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	// 尝试切分为 左路径 运算符 右字面量
	if op, idx := findOperator(expr); op != "" {
		left := strings.TrimSpace(expr[:idx])
		right := strings.TrimSpace(expr[idx+len(op):])
		if left == "" || right == "" {
			return false, fmt.Errorf("条件表达式格式非法: %q", expr)
		}
		leftVal := lookupPath(left, results)
		rightVal := parseLiteral(right)
		return compare(leftVal, rightVal, op)
	}

	// 无运算符：裸路径，按真值语义处理
	if strings.ContainsAny(expr, " \t") {
		return false, fmt.Errorf("条件表达式格式非法: %q", expr)
	}
	return truthy(lookupPath(expr, results)), nil
}

// findOperator 定位最靠左且位于引号外的比较运算符（内部方法）
// 从左到右逐字符扫描，同一位置优先匹配双字符运算符，避免>=被识别成>；
// 字符串字面量内出现的运算符不参与切分
func findOperator(expr string) (string, int) {
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if i+1 < len(expr) {
			switch two := expr[i : i+2]; two {
			case "==", "!=", ">=", "<=":
				return two, i
			}
		}
		if c == '>' || c == '<' {
			return string(c), i
		}
	}
	return "", -1
}

// lookupPath 点路径查找（内部方法）
// 首段为任务ID，其余各段逐层索引该任务输出中的嵌套map；任一段缺失返回nil
func lookupPath(path string, results map[string]map[string]interface{}) interface{} {
	segments := strings.Split(path, ".")
	if len(segments) == 0 {
		return nil
	}

	output, exists := results[segments[0]]
	if !exists {
		return nil
	}
	if len(segments) == 1 {
		return output
	}

	var current interface{} = output
	for _, segment := range segments[1:] {
		m, ok := asStringMap(current)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// asStringMap 将值规整为map[string]interface{}（内部方法）
// 兼容JSON/YAML反序列化产生的两种map类型
func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(m))
		for k, val := range m {
			result[fmt.Sprintf("%v", k)] = val
		}
		return result, true
	default:
		return nil, false
	}
}

// parseLiteral 解析右侧字面量（内部方法）
// 支持单双引号字符串、布尔值、数字；其余按裸字符串处理
func parseLiteral(s string) interface{} {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// compare 比较左右值（内部方法）
// 双方都能转为数字时按数值比较；否则==/!=按字符串比较，排序运算返回false
func compare(left, right interface{}, op string) (bool, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}

	switch op {
	case "==":
		return stringify(left) == stringify(right), nil
	case "!=":
		return stringify(left) != stringify(right), nil
	case ">", ">=", "<", "<=":
		// 非数值的排序比较不可判定，按假处理（不视为错误）
		return false, nil
	}
	return false, fmt.Errorf("不支持的运算符: %s", op)
}

// asFloat 尝试将值转为float64（内部方法）
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// stringify 将值转为比较用字符串（内部方法）
func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truthy 裸路径的真值语义（内部方法）
// nil/缺失为假；布尔取本值；数字非0为真；字符串非空且非"false"为真；其余为真
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false"
	default:
		if f, ok := asFloat(v); ok {
			return f != 0
		}
		return true
	}
}

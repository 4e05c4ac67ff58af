package llm

import "fmt"

// FirstChoice 安全地取出第一个候选, 响应为 nil 或没有候选时返回错误
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0], nil
}

// FirstContent 返回第一个候选的文本内容.
// 因长度截断 (finish_reason=length) 的结果仍会返回, 由调用方决定是否接受.
func FirstContent(resp *ChatResponse) (string, error) {
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", err
	}
	return choice.Message.Content, nil
}

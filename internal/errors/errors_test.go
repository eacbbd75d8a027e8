package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 带详情
	err = New(ErrNotFound, "游戏不存在")
	suite.Equal("资源未找到", err.Message)
	suite.Equal("游戏不存在", err.Details)

	// 多个详情
	err = New(ErrTransport, "GET /game/1/", "连接被拒绝")
	suite.Equal("GET /game/1/; 连接被拒绝", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrUnknownCell, "格子 %s 不存在", "Z9")
	suite.Equal(ErrUnknownCell, err.Code)
	suite.Equal("格子 Z9 不存在", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, ErrTransport)
	suite.Equal(ErrTransport, wrappedErr.Code)
	suite.Equal("connection refused", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有的AppError保留原始错误码
	appErr := New(ErrCommandRejected, "403")
	wrappedAppErr := Wrap(appErr, ErrTransport, "提交走子")
	suite.Equal(ErrCommandRejected, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "提交走子")
}

// 测试沿错误链判断
func (suite *ErrorsTestSuite) TestIsThroughWrapping() {
	appErr := New(ErrSessionStopped)
	chained := fmt.Errorf("同步失败: %w", appErr)

	suite.True(Is(chained, ErrSessionStopped))
	suite.Equal(ErrSessionStopped, GetCode(chained))
	suite.False(Is(errors.New("普通错误"), ErrUnknown))
	suite.False(Is(nil, ErrSessionStopped))
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrUnknown, GetCode(errors.New("普通错误")))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "游戏ID: 7"
	suite.Equal("[1002] 资源未找到: 游戏ID: 7", err.Error())
}

// 测试WithCause
func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("EOF")
	err := New(ErrMessageFormat).WithCause(cause)
	suite.Equal(cause, err.Unwrap())
	suite.Equal("EOF", err.Details)

	err2 := New(ErrMessageFormat, "解析快照失败").WithCause(cause)
	suite.Equal("解析快照失败", err2.Details)
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrMessageFormat, 400},
		{ErrNotFound, 404},
		{ErrUnknownCell, 404},
		{ErrAlreadyExists, 409},
		{ErrNotHighlighted, 403},
		{ErrCommandRejected, 403},
		{ErrGameFinished, 403},
		{ErrTimeout, 408},
		{ErrDatabaseQuery, 503},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	for _, code := range []ErrorCode{ErrTimeout, ErrTransport, ErrBadStatus, ErrWebSocketConnect, ErrWebSocketClosed} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrCommandRejected, ErrMessageFormat, ErrNotYourTurn} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

// 测试严重错误判断
func (suite *ErrorsTestSuite) TestIsCritical() {
	suite.True(IsCritical(New(ErrConfigLoad)))
	suite.True(IsCritical(New(ErrDatabaseConnect)))
	suite.False(IsCritical(New(ErrStaleSnapshot)))
	suite.False(IsCritical(nil))
}

// 测试调用栈捕获
func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.Greater(len(err.Stack), 0)
	suite.NotEmpty(err.GetStack())
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrNotFound, "游戏不存在")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试同步与交互错误消息
func (suite *ErrorsTestSuite) TestDomainMessages() {
	messages := map[ErrorCode]string{
		ErrStaleSnapshot:    "快照无新数据",
		ErrCursorRegression: "快照游标回退",
		ErrSessionStopped:   "会话已停止",
		ErrNotSelectable:    "该单位不可选择",
		ErrNotYourTurn:      "当前不是本方回合",
		ErrCommandRejected:  "服务器拒绝了指令",
	}

	for code, expectedMsg := range messages {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

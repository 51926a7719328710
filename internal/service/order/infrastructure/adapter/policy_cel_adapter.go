package adapter

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"storefront/internal/service/order/domain/port"
)

// CELCheckoutPolicy 是 port.CheckoutPolicy 的 CEL 实现。
// 可用变量: total(double) total_cents(int) lines(int) items(int) user_id(string)，
// 例如 "total_cents > 0 && items <= 50"。total 是金额转换成 float64 后的近似值，
// 需要精确比较金额时使用 total_cents。
type CELCheckoutPolicy struct {
	expr string
	prg  cel.Program
}

// NewCELCheckoutPolicy 在启动时编译表达式，语法或类型错误会直接返回。
func NewCELCheckoutPolicy(expr string) (*CELCheckoutPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("total", cel.DoubleType),
		cel.Variable("total_cents", cel.IntType),
		cel.Variable("lines", cel.IntType),
		cel.Variable("items", cel.IntType),
		cel.Variable("user_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile checkout policy %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("checkout policy %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build checkout policy program: %w", err)
	}
	return &CELCheckoutPolicy{expr: expr, prg: prg}, nil
}

func (p *CELCheckoutPolicy) Allow(ctx context.Context, in port.PolicyInput) (bool, error) {
	total, _ := in.Total.Float64()
	out, _, err := p.prg.ContextEval(ctx, map[string]any{
		"total":       total,
		"total_cents": in.Total.Shift(2).Round(0).IntPart(),
		"lines":       int64(in.Lines),
		"items":       int64(in.Items),
		"user_id":     in.UserID,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate checkout policy %q: %w", p.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("checkout policy %q returned %T", p.expr, out.Value())
	}
	return allowed, nil
}

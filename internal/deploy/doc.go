// Package deploy — координатор деплоя workflow во внешний engine.
//
// Координатор компилирует подтверждённый ScopeDraft в документ
// engine'а, помечает его слотом и tenant'ом, отправляет с повторами
// (только transient-ошибки) и ведёт локальную запись о деплое.
//
// Исходы:
//   - DEPLOYED — engine принял и активировал workflow;
//   - FAILED (rejected) — engine отклонил документ, повторы не нужны;
//   - FAILED (transient) — повторы исчерпаны.
package deploy

// Package allocator управляет пулом слотов внешнего engine'а.
//
// Пул — фиксированная матрица P проектов × S слотов. Аллокатор
// выдаёт tenant'у эксклюзивный слот, проверяя каждого кандидата
// четырьмя слоями перед назначением:
//
//	L1 — статус слота в БД всё ещё AVAILABLE;
//	L2 — в engine нет workflows с меткой слота (residual-ресурсы);
//	L3 — у слота нет свежей неархивированной записи метаданных;
//	L4 — последняя запись audit-журнала не ASSIGNED.
//
// Кандидат, не прошедший L2-L4, пропускается с WARNING-записью
// в журнале; провал L1 — проигранная гонка и записи не оставляет.
// Просроченные метаданные (старше grace-периода) слот не блокируют,
// но тоже оставляют WARNING в журнале.
// Статус в БД путь назначения не трогает — расхождения устраняет
// reconciler.
//
// Состояние БД и engine'а эвентуально согласовано: между проверкой
// и назначением внешняя система может измениться. Транзакция Assign
// с row-level lock закрывает гонку внутри БД; остальное закрывает
// периодический Reconciler.
package allocator

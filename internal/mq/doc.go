// Package mq — поток доменных событий через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — exchange и очередь событий
//   - publisher.go  — публикация событий
//   - consumer.go   — потребление (notifier)
//
// Типы событий:
//   - session.advanced  — обработана реплика диалога
//   - slot.assigned     — слот закреплён за tenant'ом
//   - slot.released     — слот освобождён
//   - slot.flagged      — reconciler пометил слот для оператора
//   - workflow.deployed — workflow развёрнут в engine
//   - workflow.failed   — деплой завершился ошибкой
//
// Поток событий — best-effort: при недоступном брокере сервисы
// работают без публикации (nil Publisher).
package mq

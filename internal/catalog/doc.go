// Package catalog содержит каталог возможностей execution engine
// и валидатор осуществимости ScopeDraft.
//
// Каталог — реестр Capability (триггеры, действия, выходы, источники).
// Валидатор сопоставляет элементы scope с каталогом: точное совпадение
// идентификатора приоритетнее нечёткого (по пересечению ключевых слов).
// Несопоставленный элемент делает scope неосуществимым; взамен
// предлагаются ближайшие альтернативы из каталога.
//
// Валидация — чистая функция каталога и входа, без побочных эффектов.
package catalog
